package radio

import "time"

const (
	// DefaultLBTRSSI is the busy threshold used when none is configured
	DefaultLBTRSSI int8 = -80

	// LBTSampleUS is the channel energy integration time of one sample
	LBTSampleUS = 250

	lbtSetupUS       = 150
	lbtSingleShotMax = 400
	lbtFloorRSSI     = -120
)

// LBTSampleCount returns how many channel samples fit in timeoutUS
func LBTSampleCount(timeoutUS uint32) uint32 {
	if timeoutUS <= lbtSingleShotMax {
		return 1
	}
	n := (timeoutUS - lbtSetupUS) / LBTSampleUS
	if n < 1 {
		n = 1
	}
	return n
}

// LBTThreshold resolves the configured threshold, substituting the default
// for zero or implausibly low values
func LBTThreshold(rssi int8) int8 {
	if rssi == 0 || rssi <= lbtFloorRSSI {
		return DefaultLBTRSSI
	}
	return rssi
}

// RSSISampler reads the instantaneous channel energy in dBm
type RSSISampler interface {
	SampleRSSI() (int8, error)
}

// ListenBeforeTalk samples the channel until it reads below threshold or the
// budget is spent. It reports whether a clear sample was seen; callers
// transmit either way. wait is called between samples with the sample period.
func ListenBeforeTalk(s RSSISampler, threshold int8, timeoutUS uint32, wait func(time.Duration)) (bool, error) {
	if timeoutUS == 0 {
		return true, nil
	}
	threshold = LBTThreshold(threshold)
	count := LBTSampleCount(timeoutUS)
	for i := uint32(0); i < count; i++ {
		rssi, err := s.SampleRSSI()
		if err != nil {
			return false, err
		}
		if rssi < threshold {
			return true, nil
		}
		if i+1 < count && wait != nil {
			wait(LBTSampleUS * time.Microsecond)
		}
	}
	return false, nil
}
