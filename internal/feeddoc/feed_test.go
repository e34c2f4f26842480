package feeddoc_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"feedcaster/internal/config"
	"feedcaster/internal/feeddoc"
)

func testChannel() feeddoc.Channel {
	return feeddoc.Channel{
		Title:       "Tech Digest",
		Description: "Daily & weekly <summaries>",
		Link:        "https://example.com",
		Language:    "en-us",
		Author:      "RSS Podcast Maker",
		Email:       "podcast@example.com",
	}
}

func entry(guid, title string, day int) feeddoc.Entry {
	return feeddoc.Entry{
		GUID:      guid,
		Title:     title,
		URL:       "https://cdn.example.com/" + guid + ".mp3",
		Bytes:     1024,
		Duration:  13*time.Minute + 7*time.Second,
		Published: time.Date(2026, 1, day, 8, 0, 0, 0, time.UTC),
	}
}

func mustRender(t *testing.T, doc *feeddoc.Document) []byte {
	t.Helper()
	out, err := doc.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return out
}

func TestAppendPreservesExistingItems(t *testing.T) {
	doc := feeddoc.New(testChannel())
	for i, title := range []string{"First & foremost", "Second"} {
		if ok, err := doc.Append(entry("ep-"+string(rune('a'+i)), title, i+1)); err != nil || !ok {
			t.Fatalf("Append %d: ok=%v err=%v", i, ok, err)
		}
	}
	before := mustRender(t, doc)

	reread, err := feeddoc.Parse(before, testChannel())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if reread.Len() != 2 {
		t.Fatalf("expected 2 items after parse, got %d", reread.Len())
	}
	if ok, err := reread.Append(entry("ep-c", "Third", 3)); err != nil || !ok {
		t.Fatalf("Append third: ok=%v err=%v", ok, err)
	}
	after := mustRender(t, reread)

	idx := bytes.Index(after, []byte("<guid isPermaLink=\"false\">ep-c</guid>"))
	if idx < 0 {
		t.Fatalf("new item missing from output:\n%s", after)
	}
	start := bytes.Index(before, []byte("<item>"))
	end := bytes.LastIndex(before, []byte("</item>")) + len("</item>")
	prior := before[start:end]
	if !bytes.Contains(after, prior) {
		t.Fatalf("prior items were not preserved verbatim\nbefore:\n%s\nafter:\n%s", prior, after)
	}
	if bytes.Index(after, prior) > idx {
		t.Fatalf("new item should follow the existing items")
	}

	parsed, err := gofeed.NewParser().ParseString(string(after))
	if err != nil {
		t.Fatalf("gofeed parse: %v", err)
	}
	if len(parsed.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(parsed.Items))
	}
	if parsed.Items[0].Title != "First & foremost" {
		t.Fatalf("first item title = %q", parsed.Items[0].Title)
	}
	if got := parsed.Items[2].GUID; got != "ep-c" {
		t.Fatalf("last guid = %q", got)
	}
	if len(parsed.Items[2].Enclosures) != 1 || parsed.Items[2].Enclosures[0].Type != "audio/mpeg" {
		t.Fatalf("unexpected enclosure %+v", parsed.Items[2].Enclosures)
	}
	if parsed.ITunesExt == nil || parsed.ITunesExt.Author != "RSS Podcast Maker" {
		t.Fatalf("expected itunes author on channel, got %+v", parsed.ITunesExt)
	}
}

func TestAppendDuplicateGUIDIsNoop(t *testing.T) {
	doc := feeddoc.New(testChannel())
	if ok, err := doc.Append(entry("ep-a", "First", 1)); err != nil || !ok {
		t.Fatalf("Append: ok=%v err=%v", ok, err)
	}
	first := mustRender(t, doc)

	reread, err := feeddoc.Parse(first, testChannel())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ok, err := reread.Append(entry("ep-a", "First again", 2))
	if err != nil {
		t.Fatalf("Append duplicate: %v", err)
	}
	if ok {
		t.Fatal("duplicate guid should not be appended")
	}
	if second := mustRender(t, reread); !bytes.Equal(first, second) {
		t.Fatalf("document changed on duplicate append\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestParseEmptyAndMalformed(t *testing.T) {
	doc, err := feeddoc.Parse(nil, testChannel())
	if err != nil {
		t.Fatalf("Parse empty: %v", err)
	}
	if doc.Len() != 0 {
		t.Fatalf("expected empty document, got %d items", doc.Len())
	}
	if _, err := feeddoc.Parse([]byte("<rss><channel><item>"), testChannel()); err == nil {
		t.Fatal("expected error for truncated document")
	}
}

func TestAppendRejectsIncompleteEntry(t *testing.T) {
	doc := feeddoc.New(testChannel())
	bad := entry("ep-a", "First", 1)
	bad.URL = ""
	if _, err := doc.Append(bad); err == nil {
		t.Fatal("expected error for entry without enclosure url")
	}
	if doc.Len() != 0 {
		t.Fatalf("rejected entry should not be stored")
	}
}

func TestChannelRegeneratedFromConfig(t *testing.T) {
	seed := feeddoc.New(feeddoc.Channel{Title: "Old title"})
	if _, err := seed.Append(entry("ep-a", "First", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	data := mustRender(t, seed)

	show := config.Show{ID: "tech", Name: "Tech Digest", Podcast: config.Podcast{Description: "New", Explicit: true}}
	doc, err := feeddoc.Parse(data, feeddoc.ChannelFor(show))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := string(mustRender(t, doc))
	if !strings.Contains(out, "<title>Tech Digest</title>") || strings.Contains(out, "Old title") {
		t.Fatalf("channel title not regenerated:\n%s", out)
	}
	if !strings.Contains(out, "<itunes:explicit>yes</itunes:explicit>") {
		t.Fatalf("explicit flag missing:\n%s", out)
	}
	if !strings.Contains(out, `xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"`) {
		t.Fatalf("itunes namespace missing:\n%s", out)
	}
}

func TestParseKeepsForeignNamespaces(t *testing.T) {
	const existing = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">
  <channel>
    <title>Tech Digest</title>
    <atom:link href="https://example.com/feed.xml" rel="self" type="application/rss+xml"/>
    <item>
      <title>Imported</title>
      <content:encoded><![CDATA[<p>Full notes</p>]]></content:encoded>
      <enclosure url="https://cdn.example.com/old.mp3" length="10" type="audio/mpeg"/>
      <guid isPermaLink="false">old</guid>
      <pubDate>Mon, 05 Jan 2026 08:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

	doc, err := feeddoc.Parse([]byte(existing), testChannel())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ok, err := doc.Append(entry("new", "Fresh", 6)); err != nil || !ok {
		t.Fatalf("Append: ok=%v err=%v", ok, err)
	}
	out := string(mustRender(t, doc))

	for _, want := range []string{
		`xmlns:content="http://purl.org/rss/1.0/modules/content/"`,
		`xmlns:atom="http://www.w3.org/2005/Atom"`,
		`<content:encoded>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered feed missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "xmlns:itunes="); n != 1 {
		t.Fatalf("expected one itunes declaration, got %d:\n%s", n, out)
	}

	parsed, err := gofeed.NewParser().ParseString(out)
	if err != nil {
		t.Fatalf("gofeed parse: %v", err)
	}
	if len(parsed.Items) != 2 || parsed.Items[0].Content != "<p>Full notes</p>" {
		t.Fatalf("expected imported content notes to survive, got %+v", parsed.Items[0])
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{13 * time.Second, "00:00:13"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{1500 * time.Millisecond, "00:00:02"},
	}
	for _, tc := range cases {
		if got := feeddoc.FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
