package adb

import "time"

// UnknownValue is the sentinel stored when neither the data sheet nor
// the page header yields an identifier or title.
const UnknownValue = "UNKNOWN"

// ProjectListing is one catalog entry as it appears on a listing page.
type ProjectListing struct {
	ProjectId    string `json:"project_id"`
	Title        string `json:"title"`
	Url          string `json:"url"`
	Country      string `json:"country"`
	Sector       string `json:"sector"`
	Status       string `json:"status"`
	ApprovalYear string `json:"approval_year"`
	ScrapedAt    string `json:"scraped_at"`
}

// ProjectDetail is the full record extracted from a project data
// sheet. It shares the listing field prefix deliberately but is a
// distinct flat type; the two schemas evolve independently.
type ProjectDetail struct {
	ProjectId    string `json:"project_id"`
	Title        string `json:"title"`
	Url          string `json:"url"`
	Country      string `json:"country"`
	Sector       string `json:"sector"`
	Status       string `json:"status"`
	ApprovalYear string `json:"approval_year"`

	ProjectType     string `json:"project_type"`
	Modality        string `json:"modality"`
	FinancingSource string `json:"financing_source"`
	FinancingAmount string `json:"financing_amount"`
	Subsector       string `json:"subsector"`

	Description          string `json:"description"`
	Rationale            string `json:"rationale"`
	Impact               string `json:"impact"`
	Outcome              string `json:"outcome"`
	Outputs              string `json:"outputs"`
	GeographicalLocation string `json:"geographical_location"`
	GenderTag            string `json:"gender_tag"`

	SafeguardEnvironment             string `json:"safeguard_environment"`
	SafeguardInvoluntaryResettlement string `json:"safeguard_involuntary_resettlement"`
	SafeguardIndigenousPeoples       string `json:"safeguard_indigenous_peoples"`

	ResponsibleOfficer    string `json:"responsible_adb_officer"`
	ResponsibleDepartment string `json:"responsible_adb_department"`
	ResponsibleDivision   string `json:"responsible_adb_division"`
	ExecutingAgencies     string `json:"executing_agencies"`

	ConceptClearance string `json:"concept_clearance"`
	FactFinding      string `json:"fact_finding"`
	ApprovalDate     string `json:"approval_date"`
	LastPdsUpdate    string `json:"last_pds_update"`

	ScrapedAt string `json:"scraped_at"`
}

func nowTimestamp() string {
	return time.Now().Format(time.RFC3339)
}

// ValidateListing reports the required fields missing from a listing
// record. An empty result means the record may be emitted.
func ValidateListing(l ProjectListing) []string {
	var missing []string
	if l.ProjectId == "" {
		missing = append(missing, "project_id")
	}
	if l.Title == "" {
		missing = append(missing, "title")
	}
	if l.Url == "" {
		missing = append(missing, "url")
	}
	return missing
}

// ValidateDetail reports hard-required fields separately from
// recommended ones. Missing recommended fields do not block emission.
func ValidateDetail(d ProjectDetail) (missing []string, recommended []string) {
	if d.ProjectId == "" {
		missing = append(missing, "project_id")
	}
	if d.Title == "" {
		missing = append(missing, "title")
	}
	if d.Url == "" {
		missing = append(missing, "url")
	}

	if d.Country == "" {
		recommended = append(recommended, "country")
	}
	if d.Sector == "" {
		recommended = append(recommended, "sector")
	}
	if d.Status == "" {
		recommended = append(recommended, "status")
	}
	if d.FinancingAmount == "" {
		recommended = append(recommended, "financing_amount")
	}
	return missing, recommended
}
