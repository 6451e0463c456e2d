package clinician

// Select returns the assignable clinician with the fewest active patients.
// Ties go to the lowest id in string order so repeated runs agree. It
// returns nil when nobody is assignable.
func Select(candidates []*Clinician) *Clinician {
	var best *Clinician
	for _, c := range candidates {
		if c == nil || !c.Assignable() {
			continue
		}
		if best == nil ||
			c.CurrentPatientCount < best.CurrentPatientCount ||
			(c.CurrentPatientCount == best.CurrentPatientCount && c.ID.String() < best.ID.String()) {
			best = c
		}
	}
	return best
}
