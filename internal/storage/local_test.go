package storage_test

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/storage"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalBackend", func() {
	var (
		backend *storage.LocalBackend
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		backend, err = storage.NewLocalBackend(GinkgoT().TempDir(), "http://localhost:8080", []byte("signing-secret"))
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	Describe("Upload and Download", func() {
		It("round-trips content under nested keys", func() {
			key := "documents/clients/client-42/doc-1/rg.pdf"
			info, err := backend.Upload(ctx, key, "application/pdf", strings.NewReader("pdf content"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Size).To(Equal(int64(len("pdf content"))))

			reader, downloaded, err := backend.Download(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			defer reader.Close()

			data, err := io.ReadAll(reader)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("pdf content"))
			Expect(downloaded.Size).To(Equal(info.Size))
		})

		It("overwrites an existing key", func() {
			key := "documents/general/doc-1/file.txt"
			_, err := backend.Upload(ctx, key, "text/plain", strings.NewReader("first"))
			Expect(err).NotTo(HaveOccurred())
			_, err = backend.Upload(ctx, key, "text/plain", strings.NewReader("second"))
			Expect(err).NotTo(HaveOccurred())

			reader, _, err := backend.Download(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			defer reader.Close()
			data, _ := io.ReadAll(reader)
			Expect(string(data)).To(Equal("second"))
		})

		It("reports missing objects", func() {
			_, _, err := backend.Download(ctx, "documents/ghost.pdf")
			Expect(err).To(Equal(internal.ErrDocumentNotFound))
		})

		It("rejects traversal in keys", func() {
			_, err := backend.Upload(ctx, "../outside.txt", "text/plain", strings.NewReader("x"))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("List", func() {
		It("walks a prefix", func() {
			_, err := backend.Upload(ctx, "access-requests/req-1/id.pdf", "application/pdf", strings.NewReader("a"))
			Expect(err).NotTo(HaveOccurred())
			_, err = backend.Upload(ctx, "access-requests/req-1/address.pdf", "application/pdf", strings.NewReader("bb"))
			Expect(err).NotTo(HaveOccurred())
			_, err = backend.Upload(ctx, "documents/general/doc-1/other.pdf", "application/pdf", strings.NewReader("c"))
			Expect(err).NotTo(HaveOccurred())

			objects, err := backend.List(ctx, "access-requests/req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(objects).To(HaveLen(2))
		})

		It("returns nothing for an unknown prefix", func() {
			objects, err := backend.List(ctx, "nowhere")
			Expect(err).NotTo(HaveOccurred())
			Expect(objects).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("removes the object and tolerates repeats", func() {
			key := "documents/general/doc-1/file.txt"
			_, err := backend.Upload(ctx, key, "text/plain", strings.NewReader("x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(backend.Delete(ctx, key)).To(Succeed())
			Expect(backend.Delete(ctx, key)).To(Succeed())

			_, _, err = backend.Download(ctx, key)
			Expect(err).To(Equal(internal.ErrDocumentNotFound))
		})
	})

	Describe("SignedURL and VerifySignature", func() {
		parseLink := func(link string) (key string, expires int64, sig string) {
			parsed, err := url.Parse(link)
			Expect(err).NotTo(HaveOccurred())

			escaped := strings.TrimPrefix(parsed.EscapedPath(), "/v1/files/")
			key, err = url.PathUnescape(escaped)
			Expect(err).NotTo(HaveOccurred())

			expires, err = strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
			Expect(err).NotTo(HaveOccurred())
			return key, expires, parsed.Query().Get("sig")
		}

		It("signs a link the backend itself accepts", func() {
			key := "documents/clients/client-42/doc-1/rg.pdf"
			link, err := backend.SignedURL(key, time.Hour)
			Expect(err).NotTo(HaveOccurred())

			parsedKey, expires, sig := parseLink(link)
			Expect(parsedKey).To(Equal(key))
			Expect(backend.VerifySignature(parsedKey, expires, sig)).To(Succeed())
		})

		It("escapes the key into a single path segment", func() {
			link, err := backend.SignedURL("documents/general/doc-1/file.txt", time.Hour)
			Expect(err).NotTo(HaveOccurred())

			parsed, err := url.Parse(link)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed.EscapedPath()).To(HavePrefix("/v1/files/"))
			Expect(strings.Count(strings.TrimPrefix(parsed.EscapedPath(), "/v1/files/"), "/")).To(BeZero())
		})

		It("rejects expired links", func() {
			key := "documents/general/doc-1/file.txt"
			link, err := backend.SignedURL(key, -time.Minute)
			Expect(err).NotTo(HaveOccurred())

			parsedKey, expires, sig := parseLink(link)
			err = backend.VerifySignature(parsedKey, expires, sig)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Message).To(Equal("download link expired"))
		})

		It("rejects tampered signatures", func() {
			key := "documents/general/doc-1/file.txt"
			link, err := backend.SignedURL(key, time.Hour)
			Expect(err).NotTo(HaveOccurred())

			parsedKey, expires, _ := parseLink(link)
			err = backend.VerifySignature(parsedKey, expires, "deadbeef")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Message).To(Equal("invalid download signature"))
		})

		It("rejects a signature replayed for another key", func() {
			link, err := backend.SignedURL("documents/general/doc-1/file.txt", time.Hour)
			Expect(err).NotTo(HaveOccurred())

			_, expires, sig := parseLink(link)
			err = backend.VerifySignature("documents/general/doc-2/file.txt", expires, sig)
			Expect(err).To(HaveOccurred())
		})
	})
})
