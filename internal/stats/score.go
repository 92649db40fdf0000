package stats

// Weights of the composite score. They must sum to 1.0.
const (
	weightUptime  = 0.7
	weightLatency = 0.3
)

// Latency bounds for the latency component, in milliseconds. At or below
// LatencyFullCreditMs the component scores 100; at or above LatencyZeroCreditMs
// it scores 0; in between it falls linearly.
const (
	LatencyFullCreditMs = 300.0
	LatencyZeroCreditMs = 3000.0
)

// Grade is a letter grade derived from a composite score.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeCMinus Grade = "C-"
	GradeD      Grade = "D"
	GradeF      Grade = "F"
)

// gradeThresholds is evaluated top to bottom; the first threshold the score
// reaches wins. Anything below the last entry is an F.
var gradeThresholds = []struct {
	min   float64
	grade Grade
}{
	{97, GradeAPlus},
	{93, GradeA},
	{90, GradeAMinus},
	{87, GradeBPlus},
	{83, GradeB},
	{80, GradeBMinus},
	{77, GradeCPlus},
	{73, GradeC},
	{70, GradeCMinus},
	{60, GradeD},
}

// Score blends availability and latency into a 0–100 score and a letter grade.
//
//	score = 0.7 * clamp(uptimePct, 0, 100) + 0.3 * latencyScore(p95Ms)
//
// A nil p95Ms means there were no successful samples; it earns no latency
// credit at all, the same as an unacceptable latency.
func Score(uptimePct float64, p95Ms *float64) (float64, Grade) {
	uptimeScore := clamp(uptimePct, 0, 100)
	score := weightUptime*uptimeScore + weightLatency*LatencyScore(p95Ms)
	return score, GradeFor(score)
}

// LatencyScore maps a p95 latency to the 0–100 latency component.
func LatencyScore(p95Ms *float64) float64 {
	switch {
	case p95Ms == nil:
		return 0
	case *p95Ms <= LatencyFullCreditMs:
		return 100
	case *p95Ms >= LatencyZeroCreditMs:
		return 0
	default:
		return 100 * (LatencyZeroCreditMs - *p95Ms) / (LatencyZeroCreditMs - LatencyFullCreditMs)
	}
}

// GradeFor maps a score to its letter grade. Boundaries are inclusive at the
// lower edge: exactly 97 is an A+.
func GradeFor(score float64) Grade {
	for _, t := range gradeThresholds {
		if score >= t.min {
			return t.grade
		}
	}
	return GradeF
}
