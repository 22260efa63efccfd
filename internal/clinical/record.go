// Package clinical evaluates stroke treatment eligibility from a
// natural-language patient presentation. A deterministic parser extracts
// structured parameters, a data-driven rule set grades each treatment
// pathway, and guideline text is pulled from a vector store for the edge
// cases the structured data cannot settle.
package clinical

import (
	"regexp"
	"strconv"
	"strings"
)

// PatientRecord holds the structured parameters extracted from a
// presentation. Pointer fields distinguish "not mentioned" from zero.
type PatientRecord struct {
	Age *int    `json:"age,omitempty"`
	Sex string  `json:"sex,omitempty"`

	LastKnownWellHours *float64 `json:"last_known_well_hours,omitempty"`
	WakeUpStroke       bool     `json:"wake_up_stroke"`
	UnknownOnset       bool     `json:"unknown_onset"`

	NIHSS   *int `json:"nihss,omitempty"`
	MRSPre  *int `json:"mrs_pre,omitempty"`
	ASPECTS *int `json:"aspects,omitempty"`

	OcclusionLocation           string `json:"occlusion_location,omitempty"`
	OcclusionSegment            string `json:"occlusion_segment,omitempty"`
	OcclusionSegmentUnspecified bool   `json:"occlusion_segment_unspecified"`
	LVO                         bool   `json:"lvo"`
	MVO                         bool   `json:"mvo"`
	AnteriorCirculation         bool   `json:"anterior_circulation"`
	PosteriorCirculation        bool   `json:"posterior_circulation"`

	HasPerfusionImaging bool     `json:"has_perfusion_imaging"`
	CoreVolumeML        *float64 `json:"core_volume_ml,omitempty"`
	PenumbraVolumeML    *float64 `json:"penumbra_volume_ml,omitempty"`
	MismatchRatio       *float64 `json:"mismatch_ratio,omitempty"`

	OnAnticoagulation bool     `json:"on_anticoagulation"`
	AnticoagulantType string   `json:"anticoagulant_type,omitempty"`
	INR               *float64 `json:"inr,omitempty"`
	Dementia          bool     `json:"dementia"`

	RawPresentation string `json:"raw_presentation"`
}

var (
	ageRe        = regexp.MustCompile(`(\d{1,3})[\s-]*(?:year|yr|y/?o)`)
	lkwLongRe    = regexp.MustCompile(`last\s+known\s+well\s+(\d+\.?\d*)\s*(?:hour|hr|h)`)
	lkwAgoRe     = regexp.MustCompile(`(\d+\.?\d*)\s*(?:hour|hr|h)\s*(?:ago|since|from)`)
	lkwShortRe   = regexp.MustCompile(`lkw\s+(\d+\.?\d*)\s*h?`)
	nihssRe      = regexp.MustCompile(`nihss\s*(?:score\s*)?(?:of\s*)?(\d+)`)
	mrsRe        = regexp.MustCompile(`(?:pre-?stroke\s+)?m?rs\s*(?:score\s*)?(?:of\s*)?(\d)`)
	aspectsRe    = regexp.MustCompile(`aspects?\s*(?:score\s*)?(?:of\s*)?(\d+)`)
	ctaShowsRe   = regexp.MustCompile(`cta\s+(?:shows?|demonstrates?|reveals?|confirms?)\s+(.+?)(?:\.|,|$)`)
	coreVolRe    = regexp.MustCompile(`core\s*(?:volume\s*)?(?:of\s*)?(\d+\.?\d*)\s*ml`)
	penumbraRe   = regexp.MustCompile(`penumbra\s*(?:volume\s*)?(?:of\s*)?(\d+\.?\d*)\s*ml`)
	mismatchRe   = regexp.MustCompile(`mismatch\s*(?:ratio\s*)?(?:of\s*)?(\d+\.?\d*)`)
	inrRe        = regexp.MustCompile(`inr\s*(?:of\s*)?(\d+\.?\d*)`)
	m1Re         = regexp.MustCompile(`\bm1\b`)
	m2Re         = regexp.MustCompile(`\bm2\b`)
	m3m4Re       = regexp.MustCompile(`\bm3\b|\bm4\b`)
	icaRe        = regexp.MustCompile(`\bica\b|internal\s+carotid|carotid terminus`)
	basilarRe    = regexp.MustCompile(`\bbasilar\b`)
	mcaBroadRe   = regexp.MustCompile(`\bmca\b|middle\s+cerebral`)
	occlusionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:left|right|bilateral)\s+(?:mca|m1|m2|m3)`),
		regexp.MustCompile(`(?:mca|m1|m2)\s+occlusion`),
		regexp.MustCompile(`(?:ica|internal\s+carotid)\s+(?:occlusion|terminus)`),
		regexp.MustCompile(`basilar\s+(?:artery\s+)?occlusion`),
		regexp.MustCompile(`(?:left|right)\s+(?:ica|mca|aca|pca|vertebral|basilar)`),
	}
)

// ParseRecord extracts a PatientRecord from free text. Extraction is
// purely lexical; anything not mentioned stays nil or false.
func ParseRecord(text string) PatientRecord {
	p := PatientRecord{RawPresentation: text, AnteriorCirculation: true}
	t := strings.ToLower(text)

	if m := ageRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			p.Age = &v
		}
	}

	switch {
	case containsAnyOf(t, "female", "woman", " f,", " f "):
		p.Sex = "female"
	case containsAnyOf(t, "male", " man", " m,", " m "):
		p.Sex = "male"
	}

	for _, re := range []*regexp.Regexp{lkwLongRe, lkwAgoRe, lkwShortRe} {
		if m := re.FindStringSubmatch(t); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				p.LastKnownWellHours = &v
			}
			break
		}
	}

	if containsAnyOf(t, "wake-up", "wake up stroke", "woke up with") {
		p.WakeUpStroke = true
		p.UnknownOnset = true
	}
	if containsAnyOf(t, "unknown onset", "unwitnessed") {
		p.UnknownOnset = true
	}

	if m := nihssRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			p.NIHSS = &v
		}
	}
	if m := mrsRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			p.MRSPre = &v
		}
	}
	if m := aspectsRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			p.ASPECTS = &v
		}
	}

	for _, re := range occlusionRes {
		if m := re.FindString(t); m != "" {
			p.OcclusionLocation = strings.TrimSpace(m)
			break
		}
	}
	if p.OcclusionLocation == "" && containsAnyOf(t, "cta", "ct angio", "ct-a") {
		if m := ctaShowsRe.FindStringSubmatch(t); m != nil {
			p.OcclusionLocation = strings.TrimSpace(m[1])
		}
	}

	// Segment detection decides LVO vs MVO. M1/ICA/basilar count as large
	// vessel, M2 and distal branches as medium.
	switch {
	case m1Re.MatchString(t):
		p.OcclusionSegment = "M1"
		p.LVO = true
	case m2Re.MatchString(t):
		p.OcclusionSegment = "M2"
		p.MVO = true
	case m3m4Re.MatchString(t):
		p.OcclusionSegment = "distal"
		p.MVO = true
	case icaRe.MatchString(t):
		p.OcclusionSegment = "ICA"
		p.LVO = true
	case basilarRe.MatchString(t):
		p.OcclusionSegment = "basilar"
		p.LVO = true
	case mcaBroadRe.MatchString(t):
		// MCA without a segment. Assume proximal but flag it so the
		// completeness check asks M1 vs M2.
		p.OcclusionSegmentUnspecified = true
		p.OcclusionSegment = "MCA (segment unspecified)"
		p.LVO = true
	}

	if !p.LVO && !p.MVO && containsAnyOf(t, "lvo", "large vessel occlusion") {
		p.LVO = true
	}

	if containsAnyOf(t, "basilar", "posterior", "vertebral", "pca", "sca", "aica", "pica") {
		p.PosteriorCirculation = true
		p.AnteriorCirculation = false
	}

	if !p.MVO && p.OcclusionSegment == "" && containsAnyOf(t, "mvo", "medium vessel", "distal") {
		p.MVO = true
	}

	if containsAnyOf(t, "ctp", "ct perfusion", "perfusion imaging", "dwi-pwi", "mismatch") {
		p.HasPerfusionImaging = true
	}
	if m := coreVolRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.CoreVolumeML = &v
			p.HasPerfusionImaging = true
		}
	}
	if m := penumbraRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.PenumbraVolumeML = &v
		}
	}
	if m := mismatchRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.MismatchRatio = &v
		}
	}

	if containsAnyOf(t, "anticoagul", "warfarin", "doac", "coumadin") {
		p.OnAnticoagulation = true
		if containsAnyOf(t, "warfarin", "coumadin") {
			p.AnticoagulantType = "warfarin"
		} else if containsAnyOf(t, "apixaban", "rivaroxaban", "dabigatran", "edoxaban", "doac") {
			p.AnticoagulantType = "DOAC"
		}
	}
	if m := inrRe.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.INR = &v
		}
	}
	if containsAnyOf(t, "dementia", "cognitive decline", "alzheimer") {
		p.Dementia = true
	}

	return p
}

// HasTimeInfo reports whether onset timing is known in any form.
func (p PatientRecord) HasTimeInfo() bool {
	return p.LastKnownWellHours != nil || p.UnknownOnset || p.WakeUpStroke
}

// HasLVOInfo reports whether a vessel occlusion has been documented.
func (p PatientRecord) HasLVOInfo() bool {
	return p.LVO || p.OcclusionLocation != ""
}

func containsAnyOf(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
