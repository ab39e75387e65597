package dataset

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildXLSX writes a minimal workbook with two sheets. Sheet "Data" is the
// second one and uses shared strings plus an inline string.
func buildXLSX(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Notes" sheetId="1" r:id="rId1"/><sheet name="Data" sheetId="2" r:id="rId2"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Target="worksheets/sheet1.xml"/>
<Relationship Id="rId2" Target="/xl/worksheets/sheet2.xml"/></Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><si><t>Disease</t></si><si><t>Deaths</t></si><si><t>Tuberculosis</t></si><si><t>readme</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>3</v></c></row></sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>12</v></c></row>
<row r="3"/>
<row r="4"><c r="A4" t="inlineStr"><is><t>TB</t></is></c><c r="C4"><v>9</v></c></row>
</sheetData></worksheet>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestXLSXLoaderSheetSelection(t *testing.T) {
	data := buildXLSX(t)

	byName, err := LoadBytes("mortality.xlsx", data, Options{Sheet: "data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Disease", "Deaths"}, byName.Columns())
	require.Equal(t, 2, byName.Len())
	assert.Equal(t, Record{"Disease": "Tuberculosis", "Deaths": "12"}, byName.Row(0))
	assert.Equal(t, Record{"Disease": "TB", "Deaths": ""}, byName.Row(1), "cells past the header width are dropped")

	byIndex, err := LoadBytes("mortality.xlsx", data, Options{SheetIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, byName.Rows(), byIndex.Rows())

	first, err := LoadBytes("mortality.xlsx", data, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"readme"}, first.Columns())
	assert.Equal(t, 0, first.Len())

	capped, err := LoadBytes("mortality.xlsx", data, Options{Sheet: "Data", MaxRows: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, capped.Len())

	_, err = LoadBytes("mortality.xlsx", data, Options{Sheet: "Missing"})
	var se *apperrors.SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, apperrors.StageIngest, se.Stage())
	assert.ErrorContains(t, err, "available: Notes, Data")
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"styles.xml", "xl/styles.xml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeRelPath(tt.input), tt.input)
	}
	assert.Equal(t, 27, colIndexFromRef("AB9"))
	assert.Equal(t, -1, colIndexFromRef(""))
}
