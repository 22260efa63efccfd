package clinical

// defaultPathways carries the treatment rule content. The evaluator in
// rules.go interprets these entries; changing clinical policy means
// editing this table, not code.
var defaultPathways = []Pathway{
	{
		Name:           "IVT_standard_window",
		Section:        "4.6.1 Thrombolysis Decision-Making",
		WindowMaxHours: 4.5,
		Criteria: []Criterion{
			{Cond: Condition{Field: "nihss", Op: ">=", Value: 1}, Label: "Measurable deficit (NIHSS >= 1)", Required: true},
			{Cond: Condition{Field: "age", Op: ">=", Value: 18}, Label: "Adult patient", FlagSearch: true},
		},
		Contra: []Contraindication{
			{
				AnticoagulantType: "warfarin",
				Cond:              Condition{Field: "inr", Op: ">", Value: 1.7},
				Reason:            "Warfarin with INR above 1.7. Thrombolysis contraindicated.",
			},
		},
		COR: "1", LOE: "A",
		Trials: []string{"NINDS", "ECASS-III", "AcT", "NOR-TEST"},
		Pages:  []int{38, 39, 40, 42, 43},
		Grade:  EligibleYes,
		Caveats: []string{
			"Tenecteplase 0.25 mg/kg single bolus or alteplase 0.9 mg/kg (COR 1, LOE A). Tenecteplase 0.4 mg/kg not recommended (COR 3: Harm).",
		},
	},
	{
		Name:           "IVT_extended_window",
		Section:        "4.6.3 Extended Time Windows for IVT",
		WindowMinHours: 4.5,
		WindowMaxHours: 24,
		UnknownOnsetOK: true,
		Criteria: []Criterion{
			{Cond: Condition{Field: "core_volume_ml", Op: "<", Value: 70}, Label: "Ischemic core below 70 mL", FlagSearch: true},
		},
		COR: "2a", LOE: "B-R",
		Trials: []string{"EXTEND", "ECASS-4", "EPITHET", "WAKE-UP", "TRACE-III", "TIMELESS"},
		Pages:  []int{44, 45},
		Grade:  EligibleConditional,
		Caveats: []string{
			"Wake-up or unknown onset requires MRI DWI-FLAIR mismatch per WAKE-UP criteria.",
			"Beyond 9h, tenecteplase is most relevant when thrombectomy is delayed or unavailable (TRACE-III vs TIMELESS).",
		},
		AlwaysSearch: true,
	},
	{
		Name:           "EVT_standard_window",
		Section:        "4.7.2 Endovascular Thrombectomy for Adult Patients",
		WindowMaxHours: 6,
		RequireLVO:     true,
		Criteria: []Criterion{
			{Cond: Condition{Field: "nihss", Op: ">=", Value: 6}, Label: "NIHSS at or above 6", Required: true, FlagSearch: true},
			{Cond: Condition{Field: "aspects", Op: ">=", Value: 6}, Label: "ASPECTS at or above 6", Required: true, FlagSearch: true},
			{Cond: Condition{Field: "mrs_pre", Op: "<=", Value: 2}, Label: "Pre-stroke mRS 0-2", FlagSearch: true},
		},
		COR: "1", LOE: "A",
		Trials: []string{"MR CLEAN", "ESCAPE", "REVASCAT", "SWIFT PRIME", "EXTEND-IA", "HERMES"},
		Pages:  []int{53, 54, 55, 56},
		Grade:  EligibleYes,
	},
	{
		Name:           "EVT_extended_window",
		Section:        "4.7.2 Endovascular Thrombectomy for Adult Patients",
		WindowMinHours: 6,
		WindowMaxHours: 24,
		UnknownOnsetOK: true,
		RequireLVO:     true,
		Criteria: []Criterion{
			{Cond: Condition{Field: "nihss", Op: ">=", Value: 6}, Label: "NIHSS at or above 6", Required: true},
			{Cond: Condition{Field: "aspects", Op: ">=", Value: 6}, Label: "ASPECTS at or above 6", Required: true, FlagSearch: true},
			{Cond: Condition{Field: "core_volume_ml", Op: "<", Value: 70}, Label: "Core volume below 70 mL", FlagSearch: true},
			{Cond: Condition{Field: "mrs_pre", Op: "<=", Value: 1}, Label: "Pre-stroke mRS 0-1 (trial population)", FlagSearch: true},
		},
		COR: "1", LOE: "A",
		Trials: []string{"DAWN", "DEFUSE-3"},
		Pages:  []int{54, 55},
		Grade:  EligibleYes,
		Caveats: []string{
			"Perfusion imaging can further characterize core and penumbra but is not required for guideline-compliant eligibility.",
		},
	},
	{
		Name:       "EVT_large_core",
		Section:    "4.7.2 Endovascular Thrombectomy for Adult Patients",
		RequireLVO: true,
		ApplyWhenAny: []Condition{
			{Field: "aspects", Op: "<=", Value: 5},
			{Field: "core_volume_ml", Op: ">", Value: 50},
		},
		Criteria: []Criterion{
			{Cond: Condition{Field: "aspects", Op: ">=", Value: 3}, Label: "ASPECTS 3-5 (trial range)", Required: true, FlagSearch: true},
		},
		COR: "1", LOE: "A",
		Trials: []string{"SELECT2", "ANGEL ASPECT", "TENSION", "LASTE"},
		Pages:  []int{54, 55},
		Grade:  EligibleYes,
		Caveats: []string{
			"ASPECTS 0-2 falls outside SELECT2 and ANGEL ASPECT inclusion; high risk of malignant edema.",
		},
	},
	{
		Name:          "EVT_posterior_circulation",
		Section:       "4.7.3 Posterior Circulation Stroke",
		RequireLVO:    true,
		PosteriorOnly: true,
		COR:           "2a", LOE: "B-R",
		Trials: []string{"ATTENTION", "BAOCHE", "BASICS"},
		Pages:  []int{59, 60},
		Grade:  EligibleConditional,
		StaticCriteria: []string{
			"ATTENTION and BAOCHE support thrombectomy for basilar occlusion",
			"BASICS did not show benefit but had enrollment issues",
		},
		Caveats: []string{
			"ATTENTION and BAOCHE enrolled within 12h of estimated onset.",
			"pc-ASPECTS may be used for posterior circulation assessment.",
		},
		AlwaysSearch: true,
	},
	{
		Name:    "BP_management",
		Section: "4.3 Blood Pressure Management",
		COR:     "1", LOE: "B-R",
		Trials: []string{"ENCHANTED", "ENCHANTED2", "BP-TARGET", "BEST-II", "OPTIMAL-BP"},
		Pages:  []int{5, 35, 36},
		Grade:  EligibleYes,
		StaticCriteria: []string{
			"Pre-thrombolysis: SBP < 185 mmHg and DBP < 110 mmHg (COR 1, LOE B-NR)",
			"Post-thrombolysis 24h: maintain BP < 180/105 mmHg (COR 1, LOE B-NR)",
			"Post-thrombectomy with successful recanalization: intensive SBP < 140 is harmful (COR 3: Harm)",
			"Post-thrombectomy: maintain SBP < 180 mmHg as standard target",
		},
	},
}
