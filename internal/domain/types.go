// Package domain contains the core business entities for clinical encounter
// documentation: the clinical document aggregate, its typed entries, and the
// value types shared by the command pipeline.
package domain

import "errors"

// Severity represents the clinical urgency of an entry. The ordering is
// meaningful: ROUTINE < ELEVATED < URGENT < CRITICAL.
type Severity string

const (
	SEVERITY_ROUTINE  Severity = "ROUTINE"
	SEVERITY_ELEVATED Severity = "ELEVATED"
	SEVERITY_URGENT   Severity = "URGENT"
	SEVERITY_CRITICAL Severity = "CRITICAL"
)

// EntryKind tags the closed set of clinical entry variants.
type EntryKind string

const (
	ENTRY_OBSERVATION  EntryKind = "OBSERVATION"
	ENTRY_ASSESSMENT   EntryKind = "ASSESSMENT"
	ENTRY_DIAGNOSIS    EntryKind = "DIAGNOSIS"
	ENTRY_PLAN         EntryKind = "PLAN"
	ENTRY_PRESCRIPTION EntryKind = "PRESCRIPTION"
)

// ObservationCategory groups observations for the SOAP note projection.
// Chief complaint, history, social, family and allergy observations render
// under Subjective; exam, vitals, lab and imaging under Objective.
type ObservationCategory string

const (
	OBS_CHIEF_COMPLAINT ObservationCategory = "CHIEF_COMPLAINT"
	OBS_HISTORY         ObservationCategory = "HISTORY"
	OBS_SOCIAL_HISTORY  ObservationCategory = "SOCIAL_HISTORY"
	OBS_FAMILY_HISTORY  ObservationCategory = "FAMILY_HISTORY"
	OBS_ALLERGY         ObservationCategory = "ALLERGY"
	OBS_EXAM            ObservationCategory = "EXAM"
	OBS_VITALS          ObservationCategory = "VITALS"
	OBS_LAB             ObservationCategory = "LAB"
	OBS_IMAGING         ObservationCategory = "IMAGING"
)

// BodySystem identifies the body system an observation pertains to.
type BodySystem string

const (
	SYSTEM_CARDIOVASCULAR   BodySystem = "CARDIOVASCULAR"
	SYSTEM_RESPIRATORY      BodySystem = "RESPIRATORY"
	SYSTEM_NEUROLOGICAL     BodySystem = "NEUROLOGICAL"
	SYSTEM_GASTROINTESTINAL BodySystem = "GASTROINTESTINAL"
	SYSTEM_MUSCULOSKELETAL  BodySystem = "MUSCULOSKELETAL"
	SYSTEM_INTEGUMENTARY    BodySystem = "INTEGUMENTARY"
	SYSTEM_GENITOURINARY    BodySystem = "GENITOURINARY"
	SYSTEM_ENDOCRINE        BodySystem = "ENDOCRINE"
	SYSTEM_HEENT            BodySystem = "HEENT"
	SYSTEM_PSYCHIATRIC      BodySystem = "PSYCHIATRIC"
	SYSTEM_GENERAL          BodySystem = "GENERAL"
)

// PatientCondition represents the assessed overall condition of the patient.
type PatientCondition string

const (
	CONDITION_STABLE        PatientCondition = "STABLE"
	CONDITION_IMPROVING     PatientCondition = "IMPROVING"
	CONDITION_DETERIORATING PatientCondition = "DETERIORATING"
	CONDITION_CRITICAL      PatientCondition = "CRITICAL"
)

// Prognosis represents the expected clinical course.
type Prognosis string

const (
	PROGNOSIS_EXCELLENT Prognosis = "EXCELLENT"
	PROGNOSIS_GOOD      Prognosis = "GOOD"
	PROGNOSIS_FAIR      Prognosis = "FAIR"
	PROGNOSIS_GUARDED   Prognosis = "GUARDED"
	PROGNOSIS_POOR      Prognosis = "POOR"
)

// ConfidenceLevel represents the clinician's confidence in an assessment.
type ConfidenceLevel string

const (
	CONFIDENCE_HIGH   ConfidenceLevel = "HIGH"
	CONFIDENCE_MEDIUM ConfidenceLevel = "MEDIUM"
	CONFIDENCE_LOW    ConfidenceLevel = "LOW"
)

// DiagnosisType distinguishes working hypotheses from confirmed diagnoses.
// A FINAL diagnosis must carry a classification code.
type DiagnosisType string

const (
	DIAGNOSIS_WORKING      DiagnosisType = "WORKING"
	DIAGNOSIS_DIFFERENTIAL DiagnosisType = "DIFFERENTIAL"
	DIAGNOSIS_FINAL        DiagnosisType = "FINAL"
	DIAGNOSIS_RULED_OUT    DiagnosisType = "RULED_OUT"
)

// DiagnosisStatus tracks the clinical status of a diagnosis over time.
type DiagnosisStatus string

const (
	DX_STATUS_ACTIVE       DiagnosisStatus = "ACTIVE"
	DX_STATUS_CHRONIC      DiagnosisStatus = "CHRONIC"
	DX_STATUS_IN_REMISSION DiagnosisStatus = "IN_REMISSION"
	DX_STATUS_RESOLVED     DiagnosisStatus = "RESOLVED"
)

// PlanType categorizes care plan entries.
type PlanType string

const (
	PLAN_TREATMENT  PlanType = "TREATMENT"
	PLAN_DIAGNOSTIC PlanType = "DIAGNOSTIC"
	PLAN_FOLLOW_UP  PlanType = "FOLLOW_UP"
	PLAN_REFERRAL   PlanType = "REFERRAL"
	PLAN_PREVENTIVE PlanType = "PREVENTIVE"
)

// PlanPriority represents the scheduling priority of a care plan.
type PlanPriority string

const (
	PRIORITY_LOW    PlanPriority = "LOW"
	PRIORITY_MEDIUM PlanPriority = "MEDIUM"
	PRIORITY_HIGH   PlanPriority = "HIGH"
	PRIORITY_STAT   PlanPriority = "STAT"
)

// MedicationRoute represents the route of administration for a prescription.
type MedicationRoute string

const (
	ROUTE_ORAL          MedicationRoute = "ORAL"
	ROUTE_INTRAVENOUS   MedicationRoute = "INTRAVENOUS"
	ROUTE_INTRAMUSCULAR MedicationRoute = "INTRAMUSCULAR"
	ROUTE_SUBCUTANEOUS  MedicationRoute = "SUBCUTANEOUS"
	ROUTE_TOPICAL       MedicationRoute = "TOPICAL"
	ROUTE_INHALED       MedicationRoute = "INHALED"
	ROUTE_SUBLINGUAL    MedicationRoute = "SUBLINGUAL"
)

// Permission is the closed set of operations a session can be granted.
type Permission string

const (
	PERM_CREATE_DOCUMENT    Permission = "CreateClinicalDocument"
	PERM_UPDATE_DOCUMENT    Permission = "UpdateClinicalDocument"
	PERM_DELETE_DOCUMENT    Permission = "DeleteClinicalDocument"
	PERM_PRESCRIBE          Permission = "PrescribeMedication"
	PERM_VIEW_OWN_DOCUMENTS Permission = "ViewOwnClinicalDocuments"
	PERM_VIEW_ALL_DOCUMENTS Permission = "ViewAllClinicalDocuments"
)

// Role represents the professional role of an authenticated user.
type Role string

const (
	ROLE_PHYSICIAN Role = "PHYSICIAN"
	ROLE_NURSE     Role = "NURSE"
	ROLE_ADMIN     Role = "ADMIN"
	ROLE_PATIENT   Role = "PATIENT"
)

// RolePermissions maps each role to the permissions it is granted. The map
// is the single source of truth for authorization checks; sessions must not
// grant permissions outside it.
var RolePermissions = map[Role][]Permission{
	ROLE_PHYSICIAN: {
		PERM_CREATE_DOCUMENT,
		PERM_UPDATE_DOCUMENT,
		PERM_PRESCRIBE,
		PERM_VIEW_OWN_DOCUMENTS,
	},
	ROLE_NURSE: {
		PERM_UPDATE_DOCUMENT,
		PERM_VIEW_OWN_DOCUMENTS,
	},
	ROLE_ADMIN: {
		PERM_CREATE_DOCUMENT,
		PERM_UPDATE_DOCUMENT,
		PERM_DELETE_DOCUMENT,
		PERM_VIEW_OWN_DOCUMENTS,
		PERM_VIEW_ALL_DOCUMENTS,
	},
	ROLE_PATIENT: {
		PERM_VIEW_OWN_DOCUMENTS,
	},
}

// Validation errors for medical record integrity
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidSeverity      = errors.New("invalid severity")
	ErrInvalidEntryKind     = errors.New("invalid entry kind")
	ErrInvalidDiagnosisType = errors.New("invalid diagnosis type")
	ErrInvalidConfidence    = errors.New("invalid confidence level")
	ErrDocumentCompleted    = errors.New("document is completed and immutable")
	ErrDocumentNotCompleted = errors.New("document is not completed")
	ErrDuplicateAppointment = errors.New("appointment already has a clinical document")
)

// severityRank orders severities for comparisons. Unknown severities rank
// below ROUTINE so invalid values never satisfy an at-least check.
var severityRank = map[Severity]int{
	SEVERITY_ROUTINE:  1,
	SEVERITY_ELEVATED: 2,
	SEVERITY_URGENT:   3,
	SEVERITY_CRITICAL: 4,
}

// IsValid reports whether the severity is a member of the closed set.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the ordinal position of the severity, 0 for unknown values.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether the severity is equal to or more urgent than other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other] && severityRank[s] > 0
}

// String returns the string representation for logging and audit trails.
func (s Severity) String() string { return string(s) }

// IsValid reports whether the entry kind is a member of the closed set.
func (k EntryKind) IsValid() bool {
	switch k {
	case ENTRY_OBSERVATION, ENTRY_ASSESSMENT, ENTRY_DIAGNOSIS, ENTRY_PLAN, ENTRY_PRESCRIPTION:
		return true
	default:
		return false
	}
}

// String returns the string representation of the entry kind.
func (k EntryKind) String() string { return string(k) }

// IsValid reports whether the observation category is known.
func (c ObservationCategory) IsValid() bool {
	switch c {
	case OBS_CHIEF_COMPLAINT, OBS_HISTORY, OBS_SOCIAL_HISTORY, OBS_FAMILY_HISTORY,
		OBS_ALLERGY, OBS_EXAM, OBS_VITALS, OBS_LAB, OBS_IMAGING:
		return true
	default:
		return false
	}
}

// IsSubjective reports whether observations of this category belong to the
// Subjective section of a SOAP note.
func (c ObservationCategory) IsSubjective() bool {
	switch c {
	case OBS_CHIEF_COMPLAINT, OBS_HISTORY, OBS_SOCIAL_HISTORY, OBS_FAMILY_HISTORY, OBS_ALLERGY:
		return true
	default:
		return false
	}
}

// IsValid reports whether the body system is known.
func (b BodySystem) IsValid() bool {
	switch b {
	case SYSTEM_CARDIOVASCULAR, SYSTEM_RESPIRATORY, SYSTEM_NEUROLOGICAL,
		SYSTEM_GASTROINTESTINAL, SYSTEM_MUSCULOSKELETAL, SYSTEM_INTEGUMENTARY,
		SYSTEM_GENITOURINARY, SYSTEM_ENDOCRINE, SYSTEM_HEENT, SYSTEM_PSYCHIATRIC,
		SYSTEM_GENERAL:
		return true
	default:
		return false
	}
}

// IsValid reports whether the patient condition is known.
func (p PatientCondition) IsValid() bool {
	switch p {
	case CONDITION_STABLE, CONDITION_IMPROVING, CONDITION_DETERIORATING, CONDITION_CRITICAL:
		return true
	default:
		return false
	}
}

// IsValid reports whether the prognosis is known.
func (p Prognosis) IsValid() bool {
	switch p {
	case PROGNOSIS_EXCELLENT, PROGNOSIS_GOOD, PROGNOSIS_FAIR, PROGNOSIS_GUARDED, PROGNOSIS_POOR:
		return true
	default:
		return false
	}
}

// IsValid validates the confidence level.
func (cl ConfidenceLevel) IsValid() bool {
	switch cl {
	case CONFIDENCE_HIGH, CONFIDENCE_MEDIUM, CONFIDENCE_LOW:
		return true
	default:
		return false
	}
}

// IsValid reports whether the diagnosis type is known.
func (d DiagnosisType) IsValid() bool {
	switch d {
	case DIAGNOSIS_WORKING, DIAGNOSIS_DIFFERENTIAL, DIAGNOSIS_FINAL, DIAGNOSIS_RULED_OUT:
		return true
	default:
		return false
	}
}

// String returns the string representation of the diagnosis type.
func (d DiagnosisType) String() string { return string(d) }

// IsValid reports whether the diagnosis status is known.
func (d DiagnosisStatus) IsValid() bool {
	switch d {
	case DX_STATUS_ACTIVE, DX_STATUS_CHRONIC, DX_STATUS_IN_REMISSION, DX_STATUS_RESOLVED:
		return true
	default:
		return false
	}
}

// IsValid reports whether the plan type is known.
func (p PlanType) IsValid() bool {
	switch p {
	case PLAN_TREATMENT, PLAN_DIAGNOSTIC, PLAN_FOLLOW_UP, PLAN_REFERRAL, PLAN_PREVENTIVE:
		return true
	default:
		return false
	}
}

// IsValid reports whether the plan priority is known.
func (p PlanPriority) IsValid() bool {
	switch p {
	case PRIORITY_LOW, PRIORITY_MEDIUM, PRIORITY_HIGH, PRIORITY_STAT:
		return true
	default:
		return false
	}
}

// IsValid reports whether the medication route is known.
func (r MedicationRoute) IsValid() bool {
	switch r {
	case ROUTE_ORAL, ROUTE_INTRAVENOUS, ROUTE_INTRAMUSCULAR, ROUTE_SUBCUTANEOUS,
		ROUTE_TOPICAL, ROUTE_INHALED, ROUTE_SUBLINGUAL:
		return true
	default:
		return false
	}
}

// IsValid reports whether the permission is a member of the closed set.
func (p Permission) IsValid() bool {
	switch p {
	case PERM_CREATE_DOCUMENT, PERM_UPDATE_DOCUMENT, PERM_DELETE_DOCUMENT,
		PERM_PRESCRIBE, PERM_VIEW_OWN_DOCUMENTS, PERM_VIEW_ALL_DOCUMENTS:
		return true
	default:
		return false
	}
}

// String returns the string representation of the permission.
func (p Permission) String() string { return string(p) }

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	_, ok := RolePermissions[r]
	return ok
}

// String returns the string representation of the role.
func (r Role) String() string { return string(r) }

// HasPermission reports whether the role is granted the permission by the
// role matrix.
func (r Role) HasPermission(p Permission) bool {
	for _, granted := range RolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}
