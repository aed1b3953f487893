package settings

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radiolink/protocol"
	"radiolink/radio"
)

func sample() Settings {
	s := Default()
	s.ReadoutIntervalSec = 30
	s.Radio.Baudrate = radio.Baud19200
	s.Radio.Band = radio.Band868G1
	s.Radio.Channel = 3
	s.Radio.TxPower = -3
	s.Radio.EnablePA = true
	s.Radio.LBTRSSI = -90
	return s
}

func TestRecordLayout(t *testing.T) {
	b, err := sample().MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, RecordSize)

	assert.Equal(t, []byte{0xDD, 0xCC, 0xBB, 0xAA, 0, 0, 0, 0}, b[:8])
	assert.Equal(t, uint32(30), binary.LittleEndian.Uint32(b[8:]))
	assert.Equal(t, uint32(19200), binary.LittleEndian.Uint32(b[12:]))
	assert.Equal(t, uint8(radio.Band868G1), b[16])
	assert.Equal(t, uint8(3), b[17])
	assert.Equal(t, uint16(0xB56B), binary.LittleEndian.Uint16(b[18:]))
	assert.Equal(t, uint8(0xFD), b[20])
	assert.Equal(t, uint8(1), b[21])
	assert.Equal(t, uint8(0xA6), b[22])
	assert.Equal(t, protocol.CRC16(b[:24]), binary.LittleEndian.Uint16(b[24:]))

	var got Settings
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, sample(), got)
}

func TestUnmarshalErrors(t *testing.T) {
	b, _ := Default().MarshalBinary()

	var s Settings
	assert.ErrorIs(t, s.UnmarshalBinary(b[:10]), ErrShort)

	bad := append([]byte(nil), b...)
	bad[9] ^= 0x01
	assert.ErrorIs(t, s.UnmarshalBinary(bad), ErrChecksum)

	bad = append([]byte(nil), b...)
	bad[0] = 0
	assert.ErrorIs(t, s.UnmarshalBinary(bad), ErrBadAnchor)
}

func TestMemFlashProgramsLikeNOR(t *testing.T) {
	f := NewMemFlash(64, 32)
	_, err := f.WriteAt([]byte{0xF0}, 3)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x0F}, 3)
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), buf[0], "writes only clear bits")

	require.NoError(t, f.EraseBlocks(0, 1))
	_, _ = f.ReadAt(buf, 3)
	assert.Equal(t, byte(0xFF), buf[0])

	_, err = f.WriteAt([]byte{1, 2}, 63)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, f.EraseBlocks(1, 2), ErrOutOfRange)
}

func TestStoreEmpty(t *testing.T) {
	st, err := NewStore(NewMemFlash(1024, 256), 2)
	require.NoError(t, err)
	_, err = st.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRegion(t *testing.T) {
	_, err := NewStore(NewMemFlash(1024, 256), 4)
	assert.ErrorIs(t, err, ErrRegion)

	f := NewMemFlash(1024, 256)
	f.SetWriteBlockSize(512)
	_, err = NewStore(f, 0)
	assert.ErrorIs(t, err, ErrRegion)
}

func TestStoreWearLevelling(t *testing.T) {
	f := NewMemFlash(1024, 256)
	st, err := NewStore(f, 1)
	require.NoError(t, err)
	require.Equal(t, 9, st.Slots())

	s := Default()
	for i := 1; i <= st.Slots(); i++ {
		s.ReadoutIntervalSec = uint32(i)
		require.NoError(t, st.Save(s))

		got, err := st.Load()
		require.NoError(t, err)
		assert.Equal(t, uint32(i), got.ReadoutIntervalSec)

		off, ok, err := st.find()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(i-1)*RecordSize, off, "save %d lands on the next slot", i)
	}
	assert.Equal(t, 1, f.Erases(), "only the first save erased")

	// The page is full, so the next save starts over at slot 0
	s.ReadoutIntervalSec = 100
	require.NoError(t, st.Save(s))
	assert.Equal(t, 2, f.Erases())
	off, _, _ := st.find()
	assert.Zero(t, off)

	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(100), got.ReadoutIntervalSec)

	// Blocks around the settings block stay erased
	buf := make([]byte, 256)
	_, _ = f.ReadAt(buf, 0)
	for _, b := range buf {
		require.Equal(t, byte(0xFF), b)
	}
}

func TestStoreAlignsSlotsToWriteBlocks(t *testing.T) {
	f := NewMemFlash(8192, 4096)
	f.SetWriteBlockSize(256)
	st, err := NewStore(f, 1)
	require.NoError(t, err)
	assert.Equal(t, 16, st.Slots())

	require.NoError(t, st.Save(sample()))
	require.NoError(t, st.Save(Default()))
	off, _, _ := st.find()
	assert.Equal(t, int64(256), off)
}

func TestStoreChecksumFailure(t *testing.T) {
	f := NewMemFlash(512, 256)
	st, _ := NewStore(f, 0)
	require.NoError(t, st.Save(sample()))

	// Clearing a bit of the interval breaks the checksum
	_, err := f.WriteAt([]byte{0xFD}, 8)
	require.NoError(t, err)
	_, err = st.Load()
	assert.ErrorIs(t, err, ErrChecksum)

	got, err := st.LoadOrDefault()
	require.NoError(t, err)
	assert.Equal(t, Default(), got)

	got, err = st.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

// cutFlash stops programming at write number cutAt. With torn set, that
// write lands only its first half before failing.
type cutFlash struct {
	*MemFlash
	cutAt  int
	torn   bool
	writes int
}

func (f *cutFlash) WriteAt(p []byte, off int64) (int, error) {
	f.writes++
	if f.writes != f.cutAt {
		return f.MemFlash.WriteAt(p, off)
	}
	if f.torn {
		_, _ = f.MemFlash.WriteAt(p[:len(p)/2], off)
	}
	return 0, errors.New("power lost")
}

func TestStoreSurvivesInterruptedSave(t *testing.T) {
	tests := []struct {
		name  string
		cutAt int
		torn  bool
		after uint32
	}{
		// write 1 is the first record, 2 the next slot, 3 clears the first
		{"cut before clearing the old record", 3, false, 20},
		{"torn write of the new record", 2, true, 10},
		{"new record never written", 2, false, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &cutFlash{MemFlash: NewMemFlash(512, 256), cutAt: tt.cutAt, torn: tt.torn}
			st, err := NewStore(f, 1)
			require.NoError(t, err)

			s := Default()
			s.ReadoutIntervalSec = 10
			require.NoError(t, st.Save(s))
			s.ReadoutIntervalSec = 20
			assert.Error(t, st.Save(s))

			got, err := st.Load()
			require.NoError(t, err)
			assert.Equal(t, tt.after, got.ReadoutIntervalSec)

			for _, v := range []uint32{30, 40} {
				s.ReadoutIntervalSec = v
				require.NoError(t, st.Save(s))
				got, err = st.Load()
				require.NoError(t, err)
				assert.Equal(t, v, got.ReadoutIntervalSec)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	st, _ := NewStore(NewMemFlash(512, 256), 0)

	got, err := st.LoadOrDefault()
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
	assert.Equal(t, uint32(60), got.ReadoutIntervalSec)

	require.NoError(t, st.Save(sample()))
	got, err = st.LoadOrDefault()
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestBoltFlashPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.db")

	f, err := OpenBoltFlash(path, 4096, 1024)
	require.NoError(t, err)
	st, err := NewStore(f, 3)
	require.NoError(t, err)
	require.NoError(t, st.Save(Default()))
	require.NoError(t, st.Save(sample()))
	require.NoError(t, f.Close())

	f, err = OpenBoltFlash(path, 4096, 1024)
	require.NoError(t, err)
	defer f.Close()
	st, err = NewStore(f, 3)
	require.NoError(t, err)

	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, sample(), got)

	// Writes spanning two blocks keep NOR semantics in both
	_, err = f.WriteAt([]byte{0x0F, 0xF0}, 1023)
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = f.ReadAt(buf, 1023)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0F, 0xF0}, buf)

	require.NoError(t, f.EraseBlocks(0, 1))
	_, _ = f.ReadAt(buf, 1023)
	assert.Equal(t, []byte{0xFF, 0xF0}, buf)

	_, err = OpenBoltFlash(filepath.Join(t.TempDir(), "x.db"), 1000, 300)
	assert.ErrorIs(t, err, ErrRegion)
}
