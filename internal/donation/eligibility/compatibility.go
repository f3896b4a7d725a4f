package eligibility

import id "bloodlink/pkg/domain"

// recipientsOf maps a donor group to the recipient groups it can medically
// serve. Shown as profile help text only; Check requires an exact match.
var recipientsOf = map[id.BloodGroup][]id.BloodGroup{
	id.BloodGroupONeg:  {id.BloodGroupONeg, id.BloodGroupOPos, id.BloodGroupANeg, id.BloodGroupAPos, id.BloodGroupBNeg, id.BloodGroupBPos, id.BloodGroupABNeg, id.BloodGroupABPos},
	id.BloodGroupOPos:  {id.BloodGroupOPos, id.BloodGroupAPos, id.BloodGroupBPos, id.BloodGroupABPos},
	id.BloodGroupANeg:  {id.BloodGroupANeg, id.BloodGroupAPos, id.BloodGroupABNeg, id.BloodGroupABPos},
	id.BloodGroupAPos:  {id.BloodGroupAPos, id.BloodGroupABPos},
	id.BloodGroupBNeg:  {id.BloodGroupBNeg, id.BloodGroupBPos, id.BloodGroupABNeg, id.BloodGroupABPos},
	id.BloodGroupBPos:  {id.BloodGroupBPos, id.BloodGroupABPos},
	id.BloodGroupABNeg: {id.BloodGroupABNeg, id.BloodGroupABPos},
	id.BloodGroupABPos: {id.BloodGroupABPos},
}

// Compatible reports whether donor blood can medically be given to recipient.
func Compatible(donor, recipient id.BloodGroup) bool {
	for _, g := range recipientsOf[donor] {
		if g == recipient {
			return true
		}
	}
	return false
}

// CanDonateTo lists the recipient groups a donor group can serve.
func CanDonateTo(donor id.BloodGroup) []id.BloodGroup {
	return append([]id.BloodGroup(nil), recipientsOf[donor]...)
}

// CanReceiveFrom lists the donor groups a recipient group can take.
func CanReceiveFrom(recipient id.BloodGroup) []id.BloodGroup {
	var out []id.BloodGroup
	for _, donor := range id.BloodGroups {
		if Compatible(donor, recipient) {
			out = append(out, donor)
		}
	}
	return out
}
