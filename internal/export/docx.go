package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/domain"
)

// buildAnnexDocx renders AnnexIV.docx: a minimal OOXML WordprocessingML
// package with one paragraph per section heading, a table-like field list
// per section, and an appendix evidence index. Content is ordered by
// section key then by evidence id so two exports of identical state
// produce byte-identical document.xml (spec §4.3: DOCX ordering matches the
// hash-covered data but the rendering itself is excluded from the hash).
//
// No third-party OOXML writer appears anywhere in the example corpus this
// module was grounded on (see DESIGN.md); the package is hand-assembled
// from archive/zip, which the corpus does use for the export ZIP itself.
func buildAnnexDocx(system *domain.AISystem, version *domain.SystemVersion, sections []*domain.AnnexSection, evidence map[uuid.UUID]*domain.EvidenceItem) ([]byte, error) {
	sorted := append([]*domain.AnnexSection(nil), sections...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SectionKey < sorted[j].SectionKey })

	var body strings.Builder
	body.WriteString(docxParagraph(fmt.Sprintf("Annex IV Technical Documentation — %s", system.Name), true))
	body.WriteString(docxParagraph(fmt.Sprintf("Version: %s (%s)", version.Label, version.Status), false))

	for _, sec := range sorted {
		body.WriteString(docxParagraph(domain.SectionTitles[sec.SectionKey], true))

		fields := make([]string, 0, len(sec.Content))
		for field := range sec.Content {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			body.WriteString(docxParagraph(fmt.Sprintf("%s: %v", field, sec.Content[field]), false))
		}

		refs := append([]uuid.UUID(nil), sec.EvidenceRefs...)
		sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
		for _, id := range refs {
			title := id.String()
			if ev, ok := evidence[id]; ok {
				title = ev.Title
			}
			body.WriteString(docxParagraph("Evidence: "+title, false))
		}
	}

	body.WriteString(docxParagraph("Evidence Index", true))
	ids := make([]uuid.UUID, 0, len(evidence))
	for id := range evidence {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		ev := evidence[id]
		body.WriteString(docxParagraph(fmt.Sprintf("%s — %s (%s)", ev.Title, ev.Type, ev.Classification), false))
	}

	documentXML := docxDocumentXML(body.String())
	return packageDocx(documentXML)
}

func docxParagraph(text string, heading bool) string {
	style := ""
	if heading {
		style = `<w:pPr><w:pStyle w:val="Heading1"/></w:pPr>`
	}
	return fmt.Sprintf(`<w:p>%s<w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, style, escapeXML(text))
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}

func docxDocumentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>` + body + `</w:body>
</w:document>`
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// packageDocx wraps the document.xml part into the minimal valid OOXML zip
// structure: content types, package relationships, and the document part
// itself. Entries are written in a fixed order for byte stability.
func packageDocx(documentXML string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRootRels},
		{"word/document.xml", documentXML},
	} {
		hdr := &zip.FileHeader{Name: f.name, Method: zip.Deflate}
		hdr.SetModTime(epoch)
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("export: docx entry %s: %w", f.name, err)
		}
		if _, err := fw.Write([]byte(f.body)); err != nil {
			return nil, fmt.Errorf("export: docx write %s: %w", f.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("export: close docx: %w", err)
	}
	return buf.Bytes(), nil
}
