// Package metadata writes the ComicInfo.xml companion file that
// comic readers use to pick up series information.
package metadata

import (
	"encoding/xml"
	"os"
)

type ComicInfo struct {
	XMLName xml.Name `xml:"ComicInfo"`

	Title       string `xml:"Title,omitempty"`
	Series      string `xml:"Series,omitempty"`
	Number      string `xml:"Number,omitempty"`
	Volume      string `xml:"Volume,omitempty"`
	Summary     string `xml:"Summary,omitempty"`
	Writer      string `xml:"Writer,omitempty"`
	Penciller   string `xml:"Penciller,omitempty"`
	Inker       string `xml:"Inker,omitempty"`
	Colorist    string `xml:"Colorist,omitempty"`
	Letterer    string `xml:"Letterer,omitempty"`
	CoverArtist string `xml:"CoverArtist,omitempty"`
	Editor      string `xml:"Editor,omitempty"`
	Publisher   string `xml:"Publisher,omitempty"`
	Genre       string `xml:"Genre,omitempty"`
	Web         string `xml:"Web,omitempty"`
	Manga       string `xml:"Manga,omitempty"`
}

// Marshal renders the ComicInfo document with an XML declaration and
// two-space indentation.
func Marshal(info ComicInfo) ([]byte, error) {
	body, err := xml.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')

	return out, nil
}

func Write(path string, info ComicInfo) error {
	data, err := Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
