package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Coding systems for the dual-coded Condition resources this service
// produces and accepts.
const (
	NamasteCodingSystem = "http://ayush.gov.in/namaste"
	ICD11CodingSystem   = "http://id.who.int/icd/release/11/mms"
)

var ErrNotABundle = errors.New("resource is not a FHIR Bundle")

// CodedCondition is the flattened form of one dual-coded Condition.
type CodedCondition struct {
	PatientID      string
	NamasteCode    string
	NamasteDisplay string
	ICDCode        string
	ICDDisplay     string
	Raw            map[string]interface{}
}

// BuildCondition renders a FHIR Condition resource carrying both the
// NAMASTE and the ICD-11 coding.
func BuildCondition(id uuid.UUID, c CodedCondition) map[string]interface{} {
	codings := make([]map[string]interface{}, 0, 2)
	if c.NamasteCode != "" || c.NamasteDisplay != "" {
		codings = append(codings, map[string]interface{}{
			"system":  NamasteCodingSystem,
			"code":    c.NamasteCode,
			"display": c.NamasteDisplay,
		})
	}
	if c.ICDCode != "" || c.ICDDisplay != "" {
		codings = append(codings, map[string]interface{}{
			"system":  ICD11CodingSystem,
			"code":    c.ICDCode,
			"display": c.ICDDisplay,
		})
	}

	text := c.NamasteDisplay
	if text == "" {
		text = c.ICDDisplay
	}

	return map[string]interface{}{
		"resourceType": "Condition",
		"id":           id.String(),
		"code": map[string]interface{}{
			"coding": codings,
			"text":   text,
		},
		"subject": map[string]interface{}{
			"reference": "Patient/" + c.PatientID,
		},
		"clinicalStatus": map[string]interface{}{
			"coding": []map[string]interface{}{{
				"system": "http://terminology.hl7.org/CodeSystem/condition-clinical",
				"code":   "active",
			}},
		},
	}
}

// ExtractConditions pulls the dual-coded Condition resources out of a FHIR
// Bundle. Conditions without a recognizable NAMASTE or ICD-11 coding are
// skipped, not rejected.
func ExtractConditions(raw []byte) ([]CodedCondition, error) {
	var bundle struct {
		ResourceType string `json:"resourceType"`
		Entry        []struct {
			Resource map[string]interface{} `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	if !strings.EqualFold(bundle.ResourceType, "Bundle") {
		return nil, ErrNotABundle
	}

	var conditions []CodedCondition
	for _, entry := range bundle.Entry {
		resource := entry.Resource
		if resource == nil {
			continue
		}
		if rt, _ := resource["resourceType"].(string); !strings.EqualFold(rt, "Condition") {
			continue
		}

		c := CodedCondition{
			PatientID: patientIDFromResource(resource),
			Raw:       resource,
		}

		for _, coding := range codingsFromResource(resource) {
			system, _ := coding["system"].(string)
			code, _ := coding["code"].(string)
			display, _ := coding["display"].(string)

			switch {
			case strings.Contains(system, "ayush"):
				c.NamasteCode = code
				c.NamasteDisplay = display
			case strings.Contains(system, "who.int"):
				c.ICDCode = code
				c.ICDDisplay = display
			}
		}

		if c.NamasteCode == "" && c.ICDCode == "" {
			continue
		}
		conditions = append(conditions, c)
	}

	return conditions, nil
}

func codingsFromResource(resource map[string]interface{}) []map[string]interface{} {
	code, _ := resource["code"].(map[string]interface{})
	if code == nil {
		return nil
	}
	rawCodings, _ := code["coding"].([]interface{})

	codings := make([]map[string]interface{}, 0, len(rawCodings))
	for _, rc := range rawCodings {
		if coding, ok := rc.(map[string]interface{}); ok {
			codings = append(codings, coding)
		}
	}
	return codings
}

func patientIDFromResource(resource map[string]interface{}) string {
	subject, _ := resource["subject"].(map[string]interface{})
	if subject == nil {
		return ""
	}
	reference, _ := subject["reference"].(string)
	return strings.TrimPrefix(reference, "Patient/")
}
