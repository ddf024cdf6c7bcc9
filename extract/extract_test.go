package extract

import (
	"strings"
	"testing"
)

const detailPage = `<html>
<head>
  <title>Merino Crew | Acme</title>
  <meta property="og:title" content="Merino Crew">
  <meta property="og:description" content="Lightweight merino crew neck.">
  <meta property="og:image" content="https://cdn.example.com/merino-og.jpg">
  <meta property="og:type" content="product">
</head>
<body>
  <nav><a href="/">Home</a><a href="/collections/all">Shop</a></nav>
  <article>
    <h1>Merino Crew</h1>
    <p>Our lightweight merino crew neck is spun from 18.5 micron wool and
    knit in Portugal. It regulates temperature on the trail and looks
    sharp enough for the office, which is why it has been our best
    selling sweater for three seasons running.</p>
    <p>Machine washable. Ships in recycled packaging.</p>
    <img src="/images/merino-front.jpg" alt="front">
    <img src="/images/merino-back.jpg" alt="back">
    <img src="/images/merino-front.jpg" alt="front again">
    <img src="data:image/gif;base64,R0lGOD" alt="placeholder">
  </article>
  <footer>© Acme</footer>
</body>
</html>`

func TestExtractor_Description(t *testing.T) {
	e := New()

	md, ok := e.Description(detailPage, "https://shop.example.com/products/merino-crew")
	if !ok {
		t.Fatal("readability pass reported failure on a full detail page")
	}
	if !strings.Contains(md, "merino crew neck") {
		t.Errorf("markdown missing product copy:\n%s", md)
	}
	if strings.Contains(md, "<p>") {
		t.Error("markdown still contains HTML tags")
	}
}

func TestExtractor_DescriptionSparsePage(t *testing.T) {
	e := New()

	md, ok := e.Description(`<html><body><p>Sold out.</p></body></html>`,
		"https://shop.example.com/products/gone")
	if ok {
		t.Error("readability pass reported success on a near-empty page")
	}
	if !strings.Contains(md, "Sold out.") {
		t.Errorf("fallback markdown missing page text: %q", md)
	}
}

func TestImages(t *testing.T) {
	images := Images(detailPage, "https://shop.example.com/products/merino-crew")

	want := []string{
		"https://shop.example.com/images/merino-front.jpg",
		"https://shop.example.com/images/merino-back.jpg",
	}
	if len(images) != len(want) {
		t.Fatalf("got %d images %v, want %d", len(images), images, len(want))
	}
	for i := range want {
		if images[i] != want[i] {
			t.Errorf("images[%d] = %q, want %q", i, images[i], want[i])
		}
	}
}

func TestImages_InvalidHTML(t *testing.T) {
	if images := Images("", "https://shop.example.com/x"); len(images) != 0 {
		t.Errorf("got %v from empty page, want none", images)
	}
}

func TestOpenGraph(t *testing.T) {
	og := OpenGraph(detailPage)

	if og.Title != "Merino Crew" {
		t.Errorf("Title = %q", og.Title)
	}
	if og.Description != "Lightweight merino crew neck." {
		t.Errorf("Description = %q", og.Description)
	}
	if og.Image != "https://cdn.example.com/merino-og.jpg" {
		t.Errorf("Image = %q", og.Image)
	}
	if og.Type != "product" {
		t.Errorf("Type = %q", og.Type)
	}
}

func TestOpenGraph_Missing(t *testing.T) {
	og := OpenGraph(`<html><head></head><body></body></html>`)
	if og != (OG{}) {
		t.Errorf("got %+v from page without og tags, want zero value", og)
	}
}
