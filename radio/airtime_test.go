package radio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAirtimeTable(t *testing.T) {
	tests := []struct {
		baud  Baudrate
		empty uint32 // 0 payload bytes
		ack   uint32 // 12-byte acknowledge
		max   uint32 // 61-byte frame
	}{
		{Baud4800, 16667, 36667, 118334},
		{Baud9600, 8334, 18334, 59167},
		{Baud19200, 4167, 9167, 29584},
		{Baud38400, 2084, 4584, 14792},
		{Baud57600, 1389, 3056, 9862},
		{Baud115200, 695, 1528, 4931},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.empty, AirtimeUS(0, tt.baud), "baud %d n=0", tt.baud)
		assert.Equal(t, tt.ack, AirtimeUS(12, tt.baud), "baud %d n=12", tt.baud)
		assert.Equal(t, tt.max, AirtimeUS(61, tt.baud), "baud %d n=61", tt.baud)
		assert.Equal(t, tt.ack, AckWindowUS(tt.baud))
		assert.Equal(t, tt.max, DataWindowUS(tt.baud))
	}
}

func TestAirtimeMatchesFormula(t *testing.T) {
	for _, baud := range Baudrates {
		for n := 0; n <= 61; n++ {
			want := uint32(math.Ceil(float64(n+FrameOverhead) * 8e6 / float64(baud)))
			require.Equal(t, want, AirtimeUS(n, baud), "baud %d n=%d", baud, n)
		}
	}
}

func TestPreambleBudget(t *testing.T) {
	assert.Equal(t, uint32(6667), PreambleBudgetUS(Baud4800))
	assert.Equal(t, uint32(278), PreambleBudgetUS(Baud115200))
	assert.Equal(t, uint32(0), BytesToUS(0, Baud4800))
	assert.Equal(t, uint32(0), BytesToUS(10, 0))
}

func TestValidateBaudrate(t *testing.T) {
	b, err := ValidateBaudrate(38400)
	require.NoError(t, err)
	assert.Equal(t, Baud38400, b)

	_, err = ValidateBaudrate(2400)
	assert.ErrorIs(t, err, ErrInvalidBaudrate)
}
