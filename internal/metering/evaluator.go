package metering

// Evaluation is the outcome of comparing usage against a limit.
type Evaluation struct {
	Allowed   bool
	Remaining int64
	Overshoot int64
}

// Evaluate decides whether adding by events to the current usage stays
// within the limit. Hitting the limit exactly is allowed; crossing it is
// not. A limit of Unlimited always admits and reports Remaining as
// Unlimited; a limit of zero never admits.
func Evaluate(used, limit, by int64) Evaluation {
	if limit == Unlimited {
		return Evaluation{Allowed: true, Remaining: Unlimited}
	}

	next := used + by
	if next <= limit {
		return Evaluation{Allowed: true, Remaining: limit - next}
	}

	overshoot := used - limit
	if overshoot < 0 {
		overshoot = 0
	}
	return Evaluation{Allowed: false, Remaining: remainingOf(used, limit), Overshoot: overshoot}
}

func remainingOf(used, limit int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
