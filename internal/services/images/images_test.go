package images

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFitInside(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{400, 300, 400, 300},
		{800, 800, 800, 800},
		{1600, 800, 800, 400},
		{800, 1600, 400, 800},
		{2000, 1000, 800, 400},
		{10000, 5, 800, 1},
	}

	for _, tc := range tests {
		w, h := fitInside(tc.w, tc.h, 800, 800)
		assert.Equal(t, tc.wantW, w, "%dx%d", tc.w, tc.h)
		assert.Equal(t, tc.wantH, h, "%dx%d", tc.w, tc.h)
	}
}

func TestProcessShrinksLargeImages(t *testing.T) {
	p := Processor{MaxWidth: 800, MaxHeight: 800, Quality: 80}

	out, err := p.Process(encodePNG(t, 1600, 1200))
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestProcessNeverEnlarges(t *testing.T) {
	p := Processor{MaxWidth: 800, MaxHeight: 800, Quality: 80}

	out, err := p.Process(encodePNG(t, 120, 90))
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 90, cfg.Height)
}

func TestProcessRejectsGarbage(t *testing.T) {
	_, err := Processor{MaxWidth: 800, MaxHeight: 800, Quality: 80}.Process([]byte("not an image"))
	assert.Error(t, err)
}

// pngHeader returns a PNG that ends after its IHDR chunk, declaring w x h
// grayscale pixels it never carries.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter, interlace stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestProcessRejectsHugeDimensions(t *testing.T) {
	data := pngHeader(100000, 100000)
	require.Less(t, len(data), 100)

	_, err := Processor{MaxWidth: 800, MaxHeight: 800, Quality: 80}.Process(data)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestProcessHonorsPixelBudget(t *testing.T) {
	p := Processor{MaxWidth: 800, MaxHeight: 800, Quality: 80, MaxPixels: 100}

	_, err := p.Process(encodePNG(t, 16, 16))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = p.Process(encodePNG(t, 10, 10))
	assert.NoError(t, err)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Write([]byte("image-bytes"))
		case "/big.jpg":
			w.Write(bytes.Repeat([]byte("x"), 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 32)
	ctx := context.Background()

	data, err := f.Fetch(ctx, srv.URL+"/ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)

	_, err = f.Fetch(ctx, srv.URL+"/missing.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = f.Fetch(ctx, srv.URL+"/big.jpg")
	assert.Error(t, err)
}

func newTestSearch(t *testing.T, body string) (*GoogleSearch, *url.Values) {
	t.Helper()
	captured := url.Values{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	g, err := NewGoogleSearch(context.Background(), &config.SearchConfig{
		APIKey:   "key",
		EngineID: "cx-1",
		Endpoint: srv.URL + "/",
		Timeout:  5 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	return g, &captured
}

func TestGoogleSearchFiltersIncompleteItems(t *testing.T) {
	g, query := newTestSearch(t, `{
		"items": [
			{"link": "https://example.com/1.jpg", "title": "Cat one", "image": {"thumbnailLink": "https://example.com/t1.jpg"}},
			{"link": "", "title": "no link"},
			{"link": "https://example.com/3.jpg", "title": ""},
			{"link": "https://example.com/4.jpg", "title": "Cat four"}
		]
	}`)

	results, err := g.Search(context.Background(), "cute cats", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://example.com/1.jpg", results[0].URL)
	assert.Equal(t, "Cat one", results[0].Title)
	assert.Equal(t, "https://example.com/t1.jpg", results[0].Thumbnail)
	assert.Equal(t, "Cat four", results[1].Title)

	q := *query
	assert.Equal(t, "cx-1", q.Get("cx"))
	assert.Equal(t, "cute cats", q.Get("q"))
	assert.Equal(t, "image", q.Get("searchType"))
	assert.Equal(t, "5", q.Get("num"))
	assert.Equal(t, "active", q.Get("safe"))
}

func TestGoogleSearchNoResults(t *testing.T) {
	g, _ := newTestSearch(t, `{}`)

	results, err := g.Search(context.Background(), "nonexistent-zzz-query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGoogleSearchNotConfigured(t *testing.T) {
	g, err := NewGoogleSearch(context.Background(), &config.SearchConfig{}, testLogger())
	require.NoError(t, err)

	_, err = g.Search(context.Background(), "cats", 5)
	assert.ErrorIs(t, err, ErrSearchNotConfigured)
}
