package simulator

import (
	"encoding/json"

	"github.com/compliancefabric/coordinator/internal/errs"
)

const (
	maxIterationsCeiling = 10000
)

// validateScenario enforces the structural rules a scenario must satisfy
// before it can be persisted or run: a name, at least one regulatory
// change, and well-formed entries within it.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errs.NewValidationError("scenario name must not be empty")
	}
	if len(s.RegulatoryChanges) == 0 {
		return errs.NewValidationError("scenario must declare at least one regulatory change")
	}

	var changes []regulatoryChange
	if err := json.Unmarshal(s.RegulatoryChanges, &changes); err != nil {
		// regulatory_changes may also be submitted as a single object
		// rather than a list; accept both shapes.
		var single regulatoryChange
		if err := json.Unmarshal(s.RegulatoryChanges, &single); err != nil {
			return errs.NewValidationError("regulatory_changes must be a JSON object or array of objects")
		}
		changes = []regulatoryChange{single}
	}
	if len(changes) == 0 {
		return errs.NewValidationError("scenario must declare at least one regulatory change")
	}
	for _, c := range changes {
		if err := validateRegulatoryChange(c); err != nil {
			return err
		}
	}

	if len(s.ImpactParameters) > 0 {
		var params impactParameters
		if err := json.Unmarshal(s.ImpactParameters, &params); err != nil {
			return errs.NewValidationError("impact_parameters must be a JSON object")
		}
		if err := validateImpactParameters(params); err != nil {
			return err
		}
	}

	return nil
}

func validateRegulatoryChange(c regulatoryChange) error {
	switch c.ChangeType {
	case "addition", "modification", "repeal":
	default:
		return errs.NewValidationError("regulatory change_type must be one of addition, modification, repeal")
	}
	if c.Jurisdiction == "" {
		return errs.NewValidationError("regulatory change must declare a jurisdiction")
	}
	if c.Description == "" {
		return errs.NewValidationError("regulatory change must declare a description")
	}
	return nil
}

func validateImpactParameters(p impactParameters) error {
	if p.Sensitivity != nil && (*p.Sensitivity < 0 || *p.Sensitivity > 1) {
		return errs.NewValidationError("impact_parameters.sensitivity must be between 0 and 1")
	}
	if p.ImpactThreshold != nil && *p.ImpactThreshold < 0 {
		return errs.NewValidationError("impact_parameters.impact_threshold must be non-negative")
	}
	if p.MaxIterations != nil && (*p.MaxIterations < 1 || *p.MaxIterations > maxIterationsCeiling) {
		return errs.NewValidationError("impact_parameters.max_iterations must be between 1 and 10000")
	}
	if p.ConfidenceThreshold != nil && (*p.ConfidenceThreshold < 0 || *p.ConfidenceThreshold > 1) {
		return errs.NewValidationError("impact_parameters.confidence_threshold must be between 0 and 1")
	}
	return nil
}
