package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newImageServer(t *testing.T, images map[string][]byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
}

func TestFetch_DownscalesToJPEG(t *testing.T) {
	server := newImageServer(t, map[string][]byte{"/big.png": makePNG(t, 400, 200)})
	defer server.Close()

	fetcher := NewFetcher(1<<20, 100, 2)
	fetcher.SetAllowLocalIPs(true)

	img, err := fetcher.Fetch(context.Background(), Attachment{URL: server.URL + "/big.png", Filename: "big.png", Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, "big.png", img.Filename)

	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 50, decoded.Bounds().Dy())
}

func TestFetch_SmallImageKeepsSize(t *testing.T) {
	server := newImageServer(t, map[string][]byte{"/small.png": makePNG(t, 20, 10)})
	defer server.Close()

	fetcher := NewFetcher(1<<20, 100, 2)
	fetcher.SetAllowLocalIPs(true)

	img, err := fetcher.Fetch(context.Background(), Attachment{URL: server.URL + "/small.png"})
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, 20, decoded.Bounds().Dx())
}

func TestFetch_DeclaredOversizeNeverDownloads(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	fetcher := NewFetcher(1<<20, 100, 2)
	fetcher.SetAllowLocalIPs(true)

	_, err := fetcher.Fetch(context.Background(), Attachment{URL: server.URL + "/huge.png", Size: 2 << 20})
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetch_BodyOverLimit(t *testing.T) {
	payload := makePNG(t, 64, 64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length: chunked body longer than the limit
		w.(http.Flusher).Flush()
		w.Write(payload)
	}))
	defer server.Close()

	fetcher := NewFetcher(int64(len(payload)/2), 100, 2)
	fetcher.SetAllowLocalIPs(true)

	_, err := fetcher.Fetch(context.Background(), Attachment{URL: server.URL + "/liar.png", Size: 10})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetch_NotAnImage(t *testing.T) {
	server := newImageServer(t, map[string][]byte{"/text.png": []byte("definitely not a png")})
	defer server.Close()

	fetcher := NewFetcher(1<<20, 100, 2)
	fetcher.SetAllowLocalIPs(true)

	_, err := fetcher.Fetch(context.Background(), Attachment{URL: server.URL + "/text.png"})
	assert.ErrorContains(t, err, "decode image")
}

func TestFetch_BlocksLocalAddresses(t *testing.T) {
	server := newImageServer(t, map[string][]byte{"/a.png": makePNG(t, 10, 10)})
	defer server.Close()

	fetcher := NewFetcher(1<<20, 100, 2)

	_, err := fetcher.Fetch(context.Background(), Attachment{URL: server.URL + "/a.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked access to restricted IP(s)")
}

func TestFetchAll_SkipsFailuresAndKeepsOrder(t *testing.T) {
	server := newImageServer(t, map[string][]byte{
		"/one.png":   makePNG(t, 10, 10),
		"/three.png": makePNG(t, 30, 30),
	})
	defer server.Close()

	fetcher := NewFetcher(1<<20, 100, 2)
	fetcher.SetAllowLocalIPs(true)

	images := fetcher.FetchAll(context.Background(), []Attachment{
		{URL: server.URL + "/one.png", Filename: "one.png", Size: 100},
		{URL: server.URL + "/missing.png", Filename: "missing.png", Size: 100},
		{URL: server.URL + "/three.png", Filename: "three.png", Size: 100},
		{URL: server.URL + "/one.png", Filename: "too_big.png", Size: 2 << 20},
	})

	require.Len(t, images, 2)
	assert.Equal(t, "one.png", images[0].Filename)
	assert.Equal(t, "three.png", images[1].Filename)
}

func TestFetchAll_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	payload := makePNG(t, 8, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		w.Write(payload)
	}))
	defer server.Close()

	fetcher := NewFetcher(1<<20, 100, 2)
	fetcher.SetAllowLocalIPs(true)

	attachments := make([]Attachment, 6)
	for i := range attachments {
		attachments[i] = Attachment{URL: server.URL + "/" + strconv.Itoa(i) + ".png", Filename: strconv.Itoa(i)}
	}

	images := fetcher.FetchAll(context.Background(), attachments)
	assert.Len(t, images, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
