package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML reads a bookmark file in the Netscape format browsers export.
// Each link takes the name of its innermost enclosing folder as group.
func ParseHTML(r io.Reader) ([]Entry, error) {
	z := html.NewTokenizer(r)

	var (
		entries []Entry
		folders []string // one per open <DL>
		heading string   // last <H3> text, waiting for its <DL>
		inH3    bool
		link    *Entry
		text    strings.Builder
	)
	current := func() string {
		if len(folders) == 0 {
			return ""
		}
		return folders[len(folders)-1]
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("parse bookmark file: %w", z.Err())

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.H3:
				inH3 = true
				text.Reset()
			case atom.Dl:
				group := current()
				if heading != "" {
					group = heading
				}
				folders = append(folders, group)
				heading = ""
			case atom.A:
				href := ""
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if strings.EqualFold(string(key), "href") {
						href = strings.TrimSpace(string(val))
					}
				}
				link = &Entry{Group: current(), URL: href}
				text.Reset()
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.H3:
				inH3 = false
				heading = strings.TrimSpace(text.String())
			case atom.Dl:
				if len(folders) > 0 {
					folders = folders[:len(folders)-1]
				}
			case atom.A:
				if link != nil {
					link.Title = strings.TrimSpace(text.String())
					if link.URL != "" {
						entries = append(entries, *link)
					}
					link = nil
				}
			}

		case html.TextToken:
			if inH3 || link != nil {
				text.Write(z.Text())
			}
		}
	}
}

// htmlWriter emits the Netscape bookmark file format.
type htmlWriter struct {
	w   *bufio.Writer
	err error
}

func newHTMLWriter(w io.Writer) *htmlWriter {
	return &htmlWriter{w: bufio.NewWriter(w)}
}

func (hw *htmlWriter) printf(format string, args ...any) {
	if hw.err != nil {
		return
	}
	_, hw.err = fmt.Fprintf(hw.w, format, args...)
}

func (hw *htmlWriter) header() {
	hw.printf("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	hw.printf("<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	hw.printf("<TITLE>Bookmarks</TITLE>\n<H1>Bookmarks</H1>\n<DL><p>\n")
}

func (hw *htmlWriter) openFolder(name string) {
	hw.printf("    <DT><H3>%s</H3>\n    <DL><p>\n", html.EscapeString(name))
}

func (hw *htmlWriter) link(title, url string, added time.Time) {
	date := ""
	if !added.IsZero() {
		date = " ADD_DATE=\"" + strconv.FormatInt(added.Unix(), 10) + "\""
	}
	hw.printf("        <DT><A HREF=\"%s\"%s>%s</A>\n", html.EscapeString(url), date, html.EscapeString(title))
}

func (hw *htmlWriter) closeFolder() {
	hw.printf("    </DL><p>\n")
}

func (hw *htmlWriter) footer() {
	hw.printf("</DL><p>\n")
}

func (hw *htmlWriter) flush() error {
	if hw.err != nil {
		return hw.err
	}
	return hw.w.Flush()
}
