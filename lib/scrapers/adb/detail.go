package adb

import (
	"fmt"
	"log/slog"
	"strings"

	"adbprojects/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Data-sheet labels resolved directly from the label/value scan.
const (
	labelProjectName       = "Project Name"
	labelProjectNumber     = "Project Number"
	labelCountry           = "Country / Economy"
	labelProjectStatus     = "Project Status"
	labelModality          = "Project Type / Modality of Assistance"
	labelDescription       = "Description"
	labelRationale         = "Project Rationale and Linkage to Country/Regional Strategy"
	labelImpact            = "Impact"
	labelOutcome           = "Outcome"
	labelOutputs           = "Outputs"
	labelGeography         = "Geographical Location"
	labelGender            = "Gender"
	labelEnvironment       = "Environment"
	labelResettlement      = "Involuntary Resettlement"
	labelIndigenous        = "Indigenous Peoples"
	labelOfficer           = "Responsible ADB Officer"
	labelDepartment        = "Responsible ADB Department"
	labelDivision          = "Responsible ADB Division"
	labelExecutingAgencies = "Executing Agencies"
	labelSectorSubsector   = "Sector / Subsector"
	labelConceptClearance  = "Concept Clearance"
	labelFactFinding       = "Fact Finding"
	labelApproval          = "Approval"
	labelLastPdsUpdate     = "Last PDS Update"
)

// ParseDetailPage extracts a full project record from a data-sheet
// document. Optional fields missing from the page stay empty; the
// record is only withheld (nil, error) when extraction itself blows
// up on pathological markup, which the caller records as a failed
// fetch rather than a fatal error.
func ParseDetailPage(doc *goquery.Document, projectUrl string) (detail *ProjectDetail, err error) {
	// selector code must never take down a multi-hour crawl over one
	// pathological page
	defer func() {
		if r := recover(); r != nil {
			detail = nil
			err = fmt.Errorf("parsing detail page %s: %v", projectUrl, r)
		}
	}()

	headerType, headerId := parseHeaderLine(doc)
	h1Title := htmlutil.SelectionText(doc.Find("h1").First())
	headerStatus := parseHeaderStatus(doc)

	data := scanDataSheet(doc)

	d := ProjectDetail{
		Url:       projectUrl,
		ScrapedAt: nowTimestamp(),

		Country:     data[labelCountry],
		ProjectType: headerType,
		Modality:    data[labelModality],

		Description:          data[labelDescription],
		Rationale:            data[labelRationale],
		Impact:               data[labelImpact],
		Outcome:              data[labelOutcome],
		Outputs:              data[labelOutputs],
		GeographicalLocation: data[labelGeography],
		GenderTag:            data[labelGender],

		SafeguardEnvironment:             data[labelEnvironment],
		SafeguardInvoluntaryResettlement: data[labelResettlement],
		SafeguardIndigenousPeoples:       data[labelIndigenous],

		ResponsibleOfficer:    data[labelOfficer],
		ResponsibleDepartment: data[labelDepartment],
		ResponsibleDivision:   data[labelDivision],

		ConceptClearance: data[labelConceptClearance],
		FactFinding:      data[labelFactFinding],
		ApprovalDate:     data[labelApproval],
		LastPdsUpdate:    data[labelLastPdsUpdate],
	}
	// ApprovalYear deliberately stays empty on detail records;
	// consumers use ApprovalDate from the timetable instead.

	d.Sector, d.Subsector = parseSectorSubsector(doc)
	d.FinancingSource, d.FinancingAmount = parseFinancing(doc)
	d.ExecutingAgencies = parseExecutingAgencies(doc)

	// identifier and title fall back header-wards, then to the sentinel
	d.ProjectId = firstNonEmpty(data[labelProjectNumber], headerId, UnknownValue)
	d.Title = firstNonEmpty(data[labelProjectName], h1Title, UnknownValue)
	d.Status = firstNonEmpty(data[labelProjectStatus], headerStatus)

	if missing, recommended := ValidateDetail(d); len(missing) > 0 || len(recommended) > 0 {
		slog.Warn("detail record has validation issues",
			"project_id", d.ProjectId,
			"missing", strings.Join(missing, ","),
			"recommended", strings.Join(recommended, ","),
		)
	}

	return &d, nil
}

// scanDataSheet builds the flat label→value dictionary from every
// dl.pds block on the page, pairing dt/dd by position within each
// block. The scan is last-wins: when a label repeats (multi-phase
// pages repeat whole sections) the later occurrence overwrites the
// earlier one.
func scanDataSheet(doc *goquery.Document) map[string]string {
	data := map[string]string{}

	doc.Find("dl.pds").Each(func(_ int, dl *goquery.Selection) {
		dts := dl.Find("dt.col-md-3")
		dds := dl.Find("dd.col-md-9")

		n := dts.Length()
		if dds.Length() < n {
			n = dds.Length()
		}
		for i := 0; i < n; i++ {
			key := htmlutil.SelectionText(dts.Eq(i))
			value := htmlutil.SelectionText(dds.Eq(i))
			data[key] = value
		}
	})

	return data
}

// parseHeaderLine reads the `"<type> | <id>"` h4 header, e.g.
// "Sovereign Project | 59364-001".
func parseHeaderLine(doc *goquery.Document) (projectType, projectId string) {
	doc.Find("h4").EachWithBreak(func(_ int, h4 *goquery.Selection) bool {
		text := htmlutil.SelectionText(h4)
		if !strings.Contains(text, "Project") || !strings.Contains(text, "|") {
			return true
		}
		parts := strings.SplitN(text, "|", 2)
		projectType = strings.TrimSpace(parts[0])
		projectId = strings.TrimSpace(parts[1])
		return false
	})
	return projectType, projectId
}

func parseHeaderStatus(doc *goquery.Document) string {
	text := htmlutil.SelectionText(doc.Find("div.project-status").First())
	return strings.TrimSpace(strings.TrimPrefix(text, "Status:"))
}

// parseSectorSubsector resolves the one block whose value splits into
// a highlighted sector element and a "/ subsector" text remainder.
func parseSectorSubsector(doc *goquery.Document) (sector, subsector string) {
	dd := findDataSheetValue(doc, labelSectorSubsector)
	if dd == nil {
		return "", ""
	}

	sectorElem := dd.Find("strong.sector").First()
	if sectorElem.Length() == 0 {
		return "", ""
	}
	sector = htmlutil.SelectionText(sectorElem)

	full := htmlutil.SelectionText(dd)
	if idx := strings.Index(full, "/"); idx >= 0 {
		subsector = strings.TrimSpace(full[idx+1:])
	}
	return sector, subsector
}

// parseFinancing reads the first data row of the financing table; the
// first two cells are source and amount.
func parseFinancing(doc *goquery.Document) (source, amount string) {
	row := doc.Find("table.fund-table tbody tr").First()
	if row.Length() == 0 {
		return "", ""
	}
	cols := row.Find("td")
	if cols.Length() < 2 {
		return "", ""
	}
	return htmlutil.SelectionText(cols.Eq(0)), htmlutil.SelectionText(cols.Eq(1))
}

func parseExecutingAgencies(doc *goquery.Document) string {
	dd := findDataSheetValue(doc, labelExecutingAgencies)
	if dd == nil {
		return ""
	}
	return htmlutil.SelectionText(dd.Find("span.address-company").First())
}

// findDataSheetValue locates the dd paired with the dt carrying the
// given label, for fields that need structural lookups inside the
// value instead of its flattened text.
func findDataSheetValue(doc *goquery.Document, label string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("dl.pds dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if htmlutil.SelectionText(dt) != label {
			return true
		}
		dd := dt.NextAllFiltered("dd").First()
		if dd.Length() > 0 {
			found = dd
		}
		return false
	})
	return found
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
