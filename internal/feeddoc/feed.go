package feeddoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedcaster/internal/config"
)

const (
	itunesNS      = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	enclosureType = "audio/mpeg"
	itemIndent    = "    "
	fieldIndent   = "  "
)

// ErrMalformed reports an existing feed document that could not be parsed.
var ErrMalformed = errors.New("malformed feed document")

// Channel is the channel-level metadata written on every render.
type Channel struct {
	Title       string
	Description string
	Link        string
	Language    string
	Author      string
	Email       string
	Explicit    bool
	Image       string
}

// ChannelFor derives channel metadata from a show's podcast settings.
func ChannelFor(show config.Show) Channel {
	p := show.Podcast
	ch := Channel{
		Title:       p.Title,
		Description: p.Description,
		Link:        p.Link,
		Language:    p.Language,
		Author:      p.Author,
		Email:       p.Email,
		Explicit:    p.Explicit,
		Image:       p.Image,
	}
	if ch.Title == "" {
		ch.Title = show.DisplayName()
	}
	if ch.Author == "" {
		ch.Author = ch.Title
	}
	return ch
}

// Entry is one episode to append.
type Entry struct {
	GUID        string
	Title       string
	Description string
	URL         string
	Bytes       int64
	Duration    time.Duration
	Published   time.Time
}

func (e Entry) validate() error {
	switch {
	case strings.TrimSpace(e.GUID) == "":
		return errors.New("entry guid is empty")
	case strings.TrimSpace(e.URL) == "":
		return errors.New("entry enclosure url is empty")
	case e.Published.IsZero():
		return errors.New("entry publish time is zero")
	}
	return nil
}

type item struct {
	guid  string
	inner string
}

// Document is a parsed feed document ready for appends.
type Document struct {
	channel Channel
	items   []item
	// Namespace declarations found on <rss> and <channel>, re-emitted on
	// render so prefixed elements inside kept items stay bound.
	rootNS    []xml.Attr
	channelNS []xml.Attr
}

// New returns an empty document.
func New(ch Channel) *Document {
	return &Document{channel: ch}
}

// Parse loads an existing document. Item bodies are kept as raw XML.
func Parse(data []byte, ch Channel) (*Document, error) {
	doc := New(ch)
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	var in struct {
		XMLName xml.Name   `xml:"rss"`
		Attrs   []xml.Attr `xml:",any,attr"`
		Channel struct {
			Attrs []xml.Attr `xml:",any,attr"`
			Items []struct {
				Inner string `xml:",innerxml"`
				GUID  string `xml:"guid"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	for _, it := range in.Channel.Items {
		doc.items = append(doc.items, item{guid: strings.TrimSpace(it.GUID), inner: it.Inner})
	}
	doc.rootNS = namespaceDecls(in.Attrs)
	doc.channelNS = namespaceDecls(in.Channel.Attrs)
	return doc, nil
}

// namespaceDecls keeps the prefixed xmlns declarations of attrs, renamed so
// the encoder writes them verbatim. The itunes prefix is always declared.
func namespaceDecls(attrs []xml.Attr) []xml.Attr {
	var out []xml.Attr
	seen := map[string]bool{"itunes": true}
	for _, a := range attrs {
		if a.Name.Space != "xmlns" || a.Name.Local == "" || seen[a.Name.Local] {
			continue
		}
		seen[a.Name.Local] = true
		out = append(out, xml.Attr{Name: xml.Name{Local: "xmlns:" + a.Name.Local}, Value: a.Value})
	}
	return out
}

// Channel returns the channel metadata the document renders with.
func (d *Document) Channel() Channel { return d.channel }

// Len returns the number of items.
func (d *Document) Len() int { return len(d.items) }

// GUIDs lists item guids in document order.
func (d *Document) GUIDs() []string {
	out := make([]string, 0, len(d.items))
	for _, it := range d.items {
		out = append(out, it.guid)
	}
	return out
}

// Has reports whether an item with guid exists.
func (d *Document) Has(guid string) bool {
	guid = strings.TrimSpace(guid)
	for _, it := range d.items {
		if it.guid == guid {
			return true
		}
	}
	return false
}

// Append adds e after the existing items. It returns false without changing
// the document when the guid is already present.
func (d *Document) Append(e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	if d.Has(e.GUID) {
		return false, nil
	}
	inner, err := renderItem(e)
	if err != nil {
		return false, err
	}
	d.items = append(d.items, item{guid: strings.TrimSpace(e.GUID), inner: inner})
	return true, nil
}

// Render serializes the document and checks that the result parses as a feed
// with the expected number of items.
func (d *Document) Render() ([]byte, error) {
	out := rssXML{
		Version:    "2.0",
		ITunes:     itunesNS,
		Namespaces: d.rootNS,
		Channel: channelXML{
			Namespaces:  d.channelNS,
			Title:       d.channel.Title,
			Description: d.channel.Description,
			Link:        d.channel.Link,
			Language:    d.channel.Language,
			Author:      d.channel.Author,
			Summary:     d.channel.Description,
			Explicit:    yesNo(d.channel.Explicit),
			Block:       "Yes",
		},
	}
	if d.channel.Author != "" || d.channel.Email != "" {
		out.Channel.Owner = &ownerXML{Name: d.channel.Author, Email: d.channel.Email}
	}
	if d.channel.Image != "" {
		out.Channel.Image = &imageXML{Href: d.channel.Image}
	}
	for _, it := range d.items {
		out.Channel.Items = append(out.Channel.Items, rawItemXML{Inner: it.inner})
	}

	body, err := xml.MarshalIndent(out, "", fieldIndent)
	if err != nil {
		return nil, fmt.Errorf("render feed: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')

	parsed, err := gofeed.NewParser().ParseString(buf.String())
	if err != nil {
		return nil, fmt.Errorf("rendered feed does not parse: %w", err)
	}
	if len(parsed.Items) != len(d.items) {
		return nil, fmt.Errorf("rendered feed has %d items, expected %d", len(parsed.Items), len(d.items))
	}
	return buf.Bytes(), nil
}

func renderItem(e Entry) (string, error) {
	desc := e.Description
	if strings.TrimSpace(desc) == "" {
		desc = e.Title
	}
	x := itemXML{
		Title:       e.Title,
		Description: desc,
		Summary:     desc,
		Duration:    FormatDuration(e.Duration),
		Enclosure: enclosureXML{
			URL:    e.URL,
			Length: e.Bytes,
			Type:   enclosureType,
		},
		GUID:    guidXML{IsPermaLink: "false", Value: strings.TrimSpace(e.GUID)},
		PubDate: e.Published.UTC().Format(time.RFC1123Z),
	}
	b, err := xml.MarshalIndent(x, itemIndent, fieldIndent)
	if err != nil {
		return "", fmt.Errorf("render item %s: %w", e.GUID, err)
	}
	s := string(b)
	s = strings.TrimPrefix(s, itemIndent+"<item>")
	s = strings.TrimSuffix(s, "</item>")
	return s, nil
}

// FormatDuration renders d as HH:MM:SS for itunes:duration.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

type rssXML struct {
	XMLName    xml.Name   `xml:"rss"`
	Version    string     `xml:"version,attr"`
	ITunes     string     `xml:"xmlns:itunes,attr"`
	Namespaces []xml.Attr `xml:",any,attr"`
	Channel    channelXML `xml:"channel"`
}

type channelXML struct {
	Namespaces  []xml.Attr   `xml:",any,attr"`
	Title       string       `xml:"title"`
	Description string       `xml:"description"`
	Link        string       `xml:"link,omitempty"`
	Language    string       `xml:"language,omitempty"`
	Author      string       `xml:"itunes:author,omitempty"`
	Summary     string       `xml:"itunes:summary,omitempty"`
	Explicit    string       `xml:"itunes:explicit"`
	Block       string       `xml:"itunes:block"`
	Owner       *ownerXML    `xml:"itunes:owner,omitempty"`
	Image       *imageXML    `xml:"itunes:image,omitempty"`
	Items       []rawItemXML `xml:"item"`
}

type ownerXML struct {
	Name  string `xml:"itunes:name,omitempty"`
	Email string `xml:"itunes:email,omitempty"`
}

type imageXML struct {
	Href string `xml:"href,attr"`
}

type rawItemXML struct {
	Inner string `xml:",innerxml"`
}

type itemXML struct {
	XMLName     xml.Name     `xml:"item"`
	Title       string       `xml:"title"`
	Description string       `xml:"description"`
	Summary     string       `xml:"itunes:summary"`
	Duration    string       `xml:"itunes:duration"`
	Enclosure   enclosureXML `xml:"enclosure"`
	GUID        guidXML      `xml:"guid"`
	PubDate     string       `xml:"pubDate"`
}

type enclosureXML struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type guidXML struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}
