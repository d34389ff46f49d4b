package assessment

// WizardVersion identifies the fixed question set a submission was scored
// against, stored alongside the answers so a later schema change never
// reinterprets an old assessment.
const WizardVersion = "2026.1"

// Question is one fixed high-risk screening question (spec SUPPLEMENTED
// FEATURES 1; grounded on original_source's wizard_questions module, whose
// question text was not retained but whose ids and high-risk framing were,
// per the contract test's thirteen q1..q13 ids).
type Question struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	HighRiskIndicator bool   `json:"high_risk_indicator"`
}

// Questions is the fixed, ordered thirteen-question high-risk screening
// set for HR-context AI systems under Annex III.
var Questions = []Question{
	{ID: "q1_hiring_decisions", Text: "Does the system make or materially influence hiring decisions?", HighRiskIndicator: true},
	{ID: "q2_cv_evaluation", Text: "Does the system evaluate or screen CVs or applications?", HighRiskIndicator: true},
	{ID: "q3_candidate_ranking", Text: "Does the system rank or score candidates against one another?", HighRiskIndicator: true},
	{ID: "q4_performance_monitoring", Text: "Does the system monitor employee performance?", HighRiskIndicator: true},
	{ID: "q5_behavior_tracking", Text: "Does the system track employee behavior or productivity patterns?", HighRiskIndicator: true},
	{ID: "q6_promotion_termination", Text: "Does the system inform promotion or termination decisions?", HighRiskIndicator: true},
	{ID: "q7_task_allocation", Text: "Does the system allocate tasks or assignments to workers?", HighRiskIndicator: true},
	{ID: "q8_conduct_evaluation", Text: "Does the system evaluate employee conduct or contractual compliance?", HighRiskIndicator: true},
	{ID: "q9_training_access", Text: "Does the system determine access to training opportunities?", HighRiskIndicator: true},
	{ID: "q10_autonomous_decisions", Text: "Does the system make decisions with no human review step?", HighRiskIndicator: true},
	{ID: "q11_biometric_data", Text: "Does the system process biometric data?", HighRiskIndicator: true},
	{ID: "q12_special_category_data", Text: "Does the system process special category personal data?", HighRiskIndicator: true},
	{ID: "q13_vulnerable_workers", Text: "Does the system apply to vulnerable worker populations?", HighRiskIndicator: true},
}

func questionByID(id string) (Question, bool) {
	for _, q := range Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Disclaimer accompanies every assessment result; the wizard is a
// screening heuristic, not a legal determination.
const Disclaimer = "This questionnaire is a screening aid, not a legal determination of high-risk status under the AI Act. Consult your compliance function before relying on its result."

// Checklist returns follow-up items for a scored result. Empty when the
// result does not indicate high risk.
func Checklist(isHighRisk bool) []string {
	if !isHighRisk {
		return nil
	}
	return []string{
		"Complete the full Annex IV technical documentation before deployment.",
		"Register the system in the EU database of high-risk AI systems.",
		"Establish a post-market monitoring plan.",
		"Confirm human oversight measures are documented and assigned.",
	}
}
