package xpost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

// uploadFields decodes one media-endpoint call regardless of its encoding:
// multipart (image/APPEND), form (INIT/FINALIZE), or query string (STATUS).
func uploadFields(t *testing.T, call wireCall) map[string]string {
	t.Helper()
	fields := map[string]string{}

	if u, err := url.Parse(call.url); err == nil {
		for k, vs := range u.Query() {
			fields[k] = vs[0]
		}
	}
	ct := call.headers["content-type"]
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		_, params, err := mime.ParseMediaType(ct)
		if err != nil {
			t.Fatalf("bad multipart content-type %q: %v", ct, err)
		}
		r := multipart.NewReader(bytes.NewReader(call.body), params["boundary"])
		for {
			part, err := r.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "media" {
				fields["media_len"] = strconv.Itoa(len(data))
			} else {
				fields[part.FormName()] = string(data)
			}
		}
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		form, err := url.ParseQuery(string(call.body))
		if err != nil {
			t.Fatal(err)
		}
		for k, vs := range form {
			fields[k] = vs[0]
		}
	}
	return fields
}

// uploadServer is a protocol-checking double for the media endpoint. It
// rejects any APPEND whose segment index is not the next contiguous one.
type uploadServer struct {
	t           *testing.T
	nextSegment int
	finalized   bool
	statusSeq   []string // processing states returned by successive STATUS calls; "" = omit processing_info
	statusCalls int
	segments    []int
}

func (s *uploadServer) handle(call wireCall) (int, map[string]string, []byte) {
	fields := uploadFields(s.t, call)
	switch fields["command"] {
	case "INIT":
		if fields["total_bytes"] == "" || fields["media_type"] == "" || fields["media_category"] == "" {
			return 400, nil, []byte(`{"errors":[{"message":"incomplete INIT"}]}`)
		}
		return 200, nil, []byte(`{"media_id_string":"9001"}`)
	case "APPEND":
		idx, err := strconv.Atoi(fields["segment_index"])
		if err != nil || idx != s.nextSegment {
			return 400, nil, fmt.Appendf(nil, `{"errors":[{"message":"segment %s out of order"}]}`, fields["segment_index"])
		}
		s.nextSegment++
		s.segments = append(s.segments, idx)
		return 204, nil, nil
	case "FINALIZE":
		s.finalized = true
		return 200, nil, []byte(`{"media_id_string":"9001"}`)
	case "STATUS":
		state := ""
		if s.statusCalls < len(s.statusSeq) {
			state = s.statusSeq[s.statusCalls]
		}
		s.statusCalls++
		if state == "" {
			return 200, nil, []byte(`{"media_id_string":"9001"}`)
		}
		return 200, nil, fmt.Appendf(nil, `{"processing_info":{"state":%q}}`, state)
	}
	return 400, nil, []byte(`{"errors":[{"message":"unknown command"}]}`)
}

func newTestUploader(handler func(wireCall) (int, map[string]string, []byte)) (*uploader, *fakeWire) {
	w := &fakeWire{handler: handler}
	return &uploader{
		exec:         &executor{wire: w, auth: &fakeAuth{csrf: "csrf0"}},
		pollInterval: time.Millisecond,
	}, w
}

func TestUploadImageSingleShot(t *testing.T) {
	w := &fakeWire{handler: func(call wireCall) (int, map[string]string, []byte) {
		return 200, nil, []byte(`{"media_id_string":"777"}`)
	}}
	u := &uploader{exec: &executor{wire: w, auth: &fakeAuth{}}, pollInterval: time.Millisecond}

	id, err := u.Upload(context.Background(), MediaAttachment{Data: []byte("png-bytes"), ContentType: "image/png"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "777" {
		t.Fatalf("media id = %q", id)
	}
	if len(w.calls) != 1 {
		t.Fatalf("image upload took %d requests, want 1", len(w.calls))
	}
	fields := uploadFields(t, w.calls[0])
	if fields["media_category"] != "tweet_image" {
		t.Fatalf("media_category = %q", fields["media_category"])
	}
	if fields["media_len"] != "9" {
		t.Fatalf("binary payload length = %s", fields["media_len"])
	}
}

func TestUploadImageMissingMediaID(t *testing.T) {
	u, _ := newTestUploader(func(wireCall) (int, map[string]string, []byte) {
		return 200, nil, []byte(`{}`)
	})
	_, err := u.Upload(context.Background(), MediaAttachment{Data: []byte("x"), ContentType: "image/png"})
	var ue *UploadError
	if !errors.As(err, &ue) || ue.Phase != phaseImage {
		t.Fatalf("err = %v, want UploadError in IMAGE phase", err)
	}
}

func TestUploadVideoChunked(t *testing.T) {
	srv := &uploadServer{t: t, statusSeq: []string{"pending", "in_progress", "succeeded"}}
	u, _ := newTestUploader(srv.handle)

	// 12 MiB: three chunks (5 + 5 + 2).
	data := bytes.Repeat([]byte{0xab}, 12*1024*1024)
	id, err := u.Upload(context.Background(), MediaAttachment{Data: data, ContentType: "video/mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "9001" {
		t.Fatalf("media id = %q", id)
	}
	if want := []int{0, 1, 2}; len(srv.segments) != 3 || srv.segments[0] != 0 || srv.segments[1] != 1 || srv.segments[2] != 2 {
		t.Fatalf("segments = %v, want %v", srv.segments, want)
	}
	if !srv.finalized {
		t.Fatal("FINALIZE never sent")
	}
	if srv.statusCalls != 3 {
		t.Fatalf("STATUS polled %d times, want 3", srv.statusCalls)
	}
}

func TestUploadAppendRejectedAbortsUpload(t *testing.T) {
	srv := &uploadServer{t: t}
	calls := 0
	u, _ := newTestUploader(func(call wireCall) (int, map[string]string, []byte) {
		fields := uploadFields(t, call)
		if fields["command"] == "APPEND" {
			calls++
			if calls == 2 {
				return 500, nil, []byte(`{"errors":[{"message":"append failed"}]}`)
			}
		}
		return srv.handle(call)
	})

	data := bytes.Repeat([]byte{1}, 11*1024*1024)
	_, err := u.Upload(context.Background(), MediaAttachment{Data: data, ContentType: "video/mp4"})
	var ue *UploadError
	if !errors.As(err, &ue) || ue.Phase != phaseAppend {
		t.Fatalf("err = %v, want UploadError in APPEND phase", err)
	}
	if srv.finalized {
		t.Fatal("FINALIZE sent after APPEND failure")
	}
	if calls != 2 {
		t.Fatalf("APPEND attempted %d times, want 2 (no chunk retry)", calls)
	}
}

func TestUploadProcessingStates(t *testing.T) {
	tests := []struct {
		name      string
		statusSeq []string
		wantErr   bool
		wantPolls int
	}{
		{"succeeded", []string{"succeeded"}, false, 1},
		{"failed", []string{"failed"}, true, 1},
		{"no processing_info means ready", []string{""}, false, 1},
		{"pending then succeeded", []string{"pending", "succeeded"}, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &uploadServer{t: t, statusSeq: tt.statusSeq}
			u, _ := newTestUploader(srv.handle)

			_, err := u.Upload(context.Background(), MediaAttachment{Data: []byte("tiny"), ContentType: "video/mp4"})
			if tt.wantErr {
				var ue *UploadError
				if !errors.As(err, &ue) || ue.Phase != phaseStatus {
					t.Fatalf("err = %v, want UploadError in STATUS phase", err)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if srv.statusCalls != tt.wantPolls {
				t.Fatalf("polled %d times, want %d", srv.statusCalls, tt.wantPolls)
			}
		})
	}
}

func TestUploadPollHonorsContext(t *testing.T) {
	// The server never reaches a terminal state; only the caller's deadline
	// ends the loop.
	srv := &uploadServer{t: t}
	u, _ := newTestUploader(func(call wireCall) (int, map[string]string, []byte) {
		if uploadFields(t, call)["command"] == "STATUS" {
			return 200, nil, []byte(`{"processing_info":{"state":"pending"}}`)
		}
		return srv.handle(call)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := u.Upload(ctx, MediaAttachment{Data: []byte("tiny"), ContentType: "video/mp4"})
	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UploadError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded in chain", err)
	}
}

func TestUploadGIFUsesChunkedPath(t *testing.T) {
	srv := &uploadServer{t: t}
	u, w := newTestUploader(srv.handle)

	if _, err := u.Upload(context.Background(), MediaAttachment{Data: []byte("gif"), ContentType: "image/gif"}); err != nil {
		t.Fatal(err)
	}
	fields := uploadFields(t, w.calls[0])
	if fields["command"] != "INIT" || fields["media_category"] != "tweet_gif" {
		t.Fatalf("first call = %v, want chunked INIT with tweet_gif", fields)
	}
}

func TestUploadAltText(t *testing.T) {
	var metadataBody []byte
	u, _ := newTestUploader(func(call wireCall) (int, map[string]string, []byte) {
		if strings.Contains(call.url, "metadata") {
			metadataBody = call.body
			return 200, nil, []byte(`{}`)
		}
		return 200, nil, []byte(`{"media_id_string":"42"}`)
	})

	_, err := u.Upload(context.Background(), MediaAttachment{
		Data: []byte("img"), ContentType: "image/jpeg", AltText: "a red tomato",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(metadataBody, []byte("a red tomato")) {
		t.Fatalf("metadata body = %s", metadataBody)
	}
}
