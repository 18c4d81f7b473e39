package fsops

import (
	"bytes"
	"encoding/base64"

	"github.com/ledongthuc/pdf"
)

// extractPDFText pulls plain text out of a PDF so it composes with the
// same range/line/lines selectors as any other text file.
func extractPDFText(abs string) (string, error) {
	f, r, err := pdf.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toBase64(content string) string {
	return base64.StdEncoding.EncodeToString([]byte(content))
}
