package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pdf/fpdf"
)

const (
	pdfFont       = "Arial"
	pdfFontSize   = 8.0
	pdfLineHeight = 4.0
	pdfMaxLines   = 12
)

var pdfColumns = []struct {
	title string
	width float64
}{
	{"Step", 12},
	{"Action", 55},
	{"Expected Result", 70},
	{"Actual Result", 85},
	{"Step Times", 30},
	{"Pass/Fail", 25},
}

// writePDF renders the report as a landscape PDF next to the HTML file,
// followed by one page per captured screenshot
func writePDF(info Info, summary Summary, steps []Step, dir string) (string, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(false, 10)
	pdf.SetTitle(info.Name, true)
	pdf.SetAuthor(info.Author, true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(pdfFont, "B", 16)
	pdf.CellFormat(0, 10, tr(info.Name), "", 1, "L", false, 0, "")

	pdf.SetFont(pdfFont, "", 10)
	for _, line := range [][2]string{
		{"Version", info.Version},
		{"Author", info.Author},
		{"URL Under Test", info.URL},
		{"Browser", info.Browser},
		{"Testing Group", info.Group},
		{"Testing Suite", info.Suite},
		{"Test Objectives", info.Objectives},
		{"Run Time", summary.Runtime},
		{"Overall Results", string(summary.Outcome)},
		{"Steps Performed", strconv.Itoa(summary.Steps)},
		{"Steps Passed", strconv.Itoa(summary.Passed)},
		{"Steps Failed", strconv.Itoa(summary.Failed)},
	} {
		pdf.SetFont(pdfFont, "B", 10)
		pdf.CellFormat(40, 6, line[0], "", 0, "L", false, 0, "")
		pdf.SetFont(pdfFont, "", 10)
		pdf.CellFormat(0, 6, tr(line[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	header := make([]string, len(pdfColumns))
	for i, col := range pdfColumns {
		header[i] = col.title
	}
	renderPDFRow(pdf, header, true, "")

	for _, step := range steps {
		renderPDFRow(pdf, []string{
			strconv.Itoa(step.Number) + ".",
			tr(plainText(step.Action)),
			tr(plainText(step.Expected)),
			tr(plainText(step.Actual)),
			fmt.Sprintf("%dms / %dms", step.StepTime, step.TotalTime),
			step.Status,
		}, false, step.Status)
	}

	for _, step := range steps {
		if step.Screenshot == "" {
			continue
		}
		path := filepath.Join(dir, step.Screenshot)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		pdf.AddPage()
		pdf.SetFont(pdfFont, "B", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("Step %d", step.Number), "", 1, "L", false, 0, "")
		pdf.ImageOptions(path, 10, pdf.GetY()+2, 0, 170, false, fpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}, 0, "")
	}

	name := strings.TrimSuffix(filepath.Base(summary.File), filepath.Ext(summary.File)) + ".pdf"
	out := filepath.Join(dir, name)
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", fmt.Errorf("failed to write pdf: %w", err)
	}
	return out, nil
}

func renderPDFRow(pdf *fpdf.Fpdf, cells []string, header bool, status string) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(pdfFont, style, pdfFontSize)

	maxLines := 1
	for i, cell := range cells {
		lines := len(pdf.SplitLines([]byte(cell), pdfColumns[i].width-2))
		if lines > maxLines {
			maxLines = lines
		}
	}
	if maxLines > pdfMaxLines {
		maxLines = pdfMaxLines
	}

	rowHeight := float64(maxLines)*pdfLineHeight + 2
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if pdf.GetY()+rowHeight > pageHeight-bottom {
		pdf.AddPage()
	}

	startX, startY := pdf.GetX(), pdf.GetY()
	x := startX
	for i, cell := range cells {
		width := pdfColumns[i].width
		if header {
			pdf.SetFillColor(173, 216, 230)
			pdf.Rect(x, startY, width, rowHeight, "FD")
		} else {
			pdf.Rect(x, startY, width, rowHeight, "D")
		}

		if i == len(cells)-1 && !header {
			setStatusColor(pdf, status)
		}

		lines := pdf.SplitLines([]byte(cell), width-2)
		if len(lines) > pdfMaxLines {
			lines = lines[:pdfMaxLines]
		}
		for j, line := range lines {
			pdf.SetXY(x+1, startY+1+float64(j)*pdfLineHeight)
			pdf.CellFormat(width-2, pdfLineHeight, string(line), "", 0, "L", false, 0, "")
		}
		pdf.SetTextColor(0, 0, 0)
		x += width
	}

	pdf.SetXY(startX, startY+rowHeight)
}

func setStatusColor(pdf *fpdf.Fpdf, status string) {
	switch status {
	case StatusPass:
		pdf.SetTextColor(0, 128, 0)
	case StatusFail:
		pdf.SetTextColor(255, 0, 0)
	default:
		pdf.SetTextColor(255, 165, 0)
	}
}

// plainText strips the markup recorded in report cells, keeping line breaks
func plainText(fragment string) string {
	fragment = strings.ReplaceAll(fragment, "<br/>", "\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("a, img, script").Remove()
	text := strings.ReplaceAll(doc.Text(), "\u00a0", " ")
	return strings.TrimSpace(text)
}
