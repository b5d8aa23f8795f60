package catalog

import (
	"bytes"
	"encoding/csv"
	"strings"
)

// reportColumns is the fixed column set the destination's category import
// expects; Parent UID is a placeholder left blank.
var reportColumns = []string{"External ID", "Mark", "Category", "Parent UID", "SEO descr", "SEO keywords"}

type reportWriter struct {
	buf bytes.Buffer
	w   *csv.Writer
}

func newReportWriter() *reportWriter {
	r := &reportWriter{}
	r.w = csv.NewWriter(&r.buf)
	r.w.UseCRLF = true
	_ = r.w.Write(reportColumns)
	return r
}

func (r *reportWriter) WriteRow(externalID, mark string, categories []string, seoDescr, seoKeywords string) {
	_ = r.w.Write([]string{externalID, mark, strings.Join(categories, ";"), "", seoDescr, seoKeywords})
}

func (r *reportWriter) String() string {
	r.w.Flush()
	return r.buf.String()
}
