// Package similarity implements the mutation similarity core: grouping mutation calls
// into canonical variants, classifying reference variants against a comparison
// patient, filtering the result by tag, and ranking candidate patients.
//
// Functions in this package are pure. They never return errors, never mutate their
// inputs and are safe for concurrent use. Inputs are assumed to have passed
// domain.MutationRecord.Validate at the boundary.
package similarity
