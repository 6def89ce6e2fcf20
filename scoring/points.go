package scoring

// Championship points by finishing position, 1st through 10th.
var finishPoints = []int{25, 18, 15, 12, 10, 8, 6, 4, 2, 1}

// Bonus points for the three fastest power-stage times.
var powerStagePoints = []int{3, 2, 1}

// The upstream service encodes "did not finish" as one of two fixed
// stage times depending on event length. These are markers, not laps
// anyone drove.
const (
	dnfShortSeconds = 900
	dnfLongSeconds  = 1800
)

func isDNF(seconds float64) bool {
	return seconds == dnfShortSeconds || seconds == dnfLongSeconds
}
