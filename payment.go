package main

// CalculatePayment computes the amounts due for one registration.
// referenceYear is the configured event season year, not the wall clock.
//
// Returned values: regular is the formula amount capped by the city ceiling,
// discount is the flat early-registration discount, discounted is regular
// minus discount floored at zero, formula is the uncapped amount.
func CalculatePayment(city CityConfig, graduationYear int, gt GraduateType, referenceYear int) (regular, discount, discounted, formula int) {
	if city.FeeExempt || gt == GraduateTypeTeacher {
		return 0, 0, 0, 0
	}

	// Non-graduates have no graduation year; substituting the reference year
	// puts them at zero years since graduation, so the floor below yields the
	// plain base amount.
	if gt == GraduateTypeNonGraduate {
		graduationYear = referenceYear
	}

	years := referenceYear - graduationYear
	if years < 0 {
		years = 0
	}

	formula = city.Base + city.Step*years
	regular = formula
	if regular > city.Cap {
		regular = city.Cap
	}
	discount = city.Discount
	discounted = regular - discount
	if discounted < 0 {
		discounted = 0
	}
	return regular, discount, discounted, formula
}

// PaymentDueFor is a convenience wrapper packing CalculatePayment results.
func PaymentDueFor(city CityConfig, reg Registration, referenceYear int) PaymentDue {
	regular, discount, discounted, formula := CalculatePayment(city, reg.GraduationYear, reg.GraduateType, referenceYear)
	return PaymentDue{Regular: regular, Discount: discount, Discounted: discounted, Formula: formula}
}
