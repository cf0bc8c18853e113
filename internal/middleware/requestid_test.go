package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func newRequestIDApp() *fiber.App {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	app := newRequestIDApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	got := resp.Header.Get(requestIDHeader)
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("response id %q is not a uuid: %v", got, err)
	}
}

func TestRequestIDPropagatesValidInboundID(t *testing.T) {
	app := newRequestIDApp()
	inbound := uuid.NewString()

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, inbound)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); got != inbound {
		t.Fatalf("expected inbound id %q echoed, got %q", inbound, got)
	}
}

func TestRequestIDReplacesMalformedInboundID(t *testing.T) {
	app := newRequestIDApp()

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "spoofed-garbage")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	got := resp.Header.Get(requestIDHeader)
	if got == "spoofed-garbage" {
		t.Fatal("malformed inbound id must not be propagated")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("replacement id %q is not a uuid: %v", got, err)
	}
}
