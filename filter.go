package agent

// MaxAccuracyMeters separates genuine satellite or assisted fixes (single
// digits to low hundreds of meters) from coarse network and cell-tower
// estimates (hundreds to thousands).
const MaxAccuracyMeters = 150.0

// AccuracyAcceptable reports whether a fix is precise enough to deliver.
// A missing accuracy estimate is acceptable: absence of data should not
// block delivery.
func AccuracyAcceptable(accuracyM *float64) bool {
	if accuracyM == nil {
		return true
	}
	return *accuracyM <= MaxAccuracyMeters
}
