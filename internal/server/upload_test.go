package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploadHandler_StoresFiles(t *testing.T) {
	env := newTestEnv(t)

	rr := env.upload(t,
		formFile{field: "note", content: "ignored form field"},
		formFile{field: "files", name: "report.pdf", contentType: "application/pdf", content: "%PDF-1.7"},
		formFile{field: "other", name: "skip.txt", content: "wrong field"},
		formFile{field: "files", name: "photo.jpg", content: "jpeg bytes"},
	)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeBody[uploadResp](t, rr)
	if len(resp.OTP) != 6 {
		t.Errorf("otp = %q", resp.OTP)
	}
	if resp.Message != "Files stored successfully" {
		t.Errorf("message = %q", resp.Message)
	}
	if strings.Join(resp.Files, ",") != "report.pdf,photo.jpg" {
		t.Errorf("files = %v", resp.Files)
	}
	if env.repo.count() != 1 {
		t.Errorf("expected one bundle, got %d", env.repo.count())
	}
	if n := countFiles(t, env.blobs.Dir()); n != 2 {
		t.Errorf("expected 2 stored files, got %d", n)
	}
}

func TestUploadHandler_SanitizesNames(t *testing.T) {
	env := newTestEnv(t)

	rr := env.upload(t, formFile{field: "files", name: "../../etc/passwd", content: "x"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[uploadResp](t, rr)
	if len(resp.Files) != 1 || resp.Files[0] != "passwd" {
		t.Errorf("files = %v", resp.Files)
	}
}

func TestUploadHandler_NoFiles(t *testing.T) {
	env := newTestEnv(t)

	rr := env.upload(t, formFile{field: "note", content: "hello"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if env.repo.count() != 0 {
		t.Errorf("no bundle expected")
	}
}

func TestUploadHandler_NotMultipart(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(`{"files":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestUploadHandler_TooLargeRemovesEverything(t *testing.T) {
	env := newTestEnv(t, withMaxUpload(8))

	rr := env.upload(t,
		formFile{field: "files", name: "small.txt", content: "12345678"},
		formFile{field: "files", name: "big.bin", content: "123456789"},
	)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
	if detailOf(t, rr) == "" {
		t.Errorf("expected a detail message")
	}
	if n := countFiles(t, env.blobs.Dir()); n != 0 {
		t.Errorf("expected no stored files after failure, got %d", n)
	}
	if env.repo.count() != 0 {
		t.Errorf("no bundle expected")
	}
}

func TestUploadHandler_TruncatedBody(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, formFile{field: "files", name: "a.txt", content: "abc"})
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	// drop the closing boundary
	cut := strings.LastIndex(string(raw), "\r\n--")
	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(string(raw[:cut])))
	req.Header.Set("Content-Type", ct)

	rr := env.do(req)
	if rr.Code < 400 {
		t.Fatalf("expected an error status, got %d", rr.Code)
	}
	if n := countFiles(t, env.blobs.Dir()); n != 0 {
		t.Errorf("partial upload left %d files", n)
	}
}
