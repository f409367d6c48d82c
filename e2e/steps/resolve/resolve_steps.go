package resolve

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	ResponseContains(field string) bool
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastElapsed() time.Duration
}

const resolvePath = "/v1/connections/resolve"

// RegisterSteps registers connection resolution step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &resolveSteps{tc: tc}

	ctx.Step(`^the server is healthy$`, steps.serverIsHealthy)
	ctx.Step(`^"([^"]*)" connects before authentication$`, steps.connectsPreAuth)
	ctx.Step(`^"([^"]*)" connects after authentication with its offline id$`, steps.connectsWithOfflineID)
	ctx.Step(`^"([^"]*)" connects after authentication with id "([^"]*)"$`, steps.connectsWithID)
	ctx.Step(`^I POST the raw body '([^']*)'$`, steps.postRawBody)
	ctx.Step(`^"([^"]*)" has connected before$`, steps.connectsPreAuth)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the connection should be (allowed|denied)$`, steps.connectionShouldBe)
	ctx.Step(`^the verdict source should be "([^"]*)"$`, steps.sourceShouldBe)
	ctx.Step(`^the verdict source should be one of "([^"]*)"$`, steps.sourceShouldBeOneOf)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response should arrive within (\d+)ms$`, steps.arriveWithin)
}

type resolveSteps struct {
	tc TestContext
}

func (s *resolveSteps) serverIsHealthy(ctx context.Context) error {
	if err := s.tc.GET("/healthz", nil); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *resolveSteps) connectsPreAuth(ctx context.Context, username string) error {
	return s.tc.POST(resolvePath, map[string]interface{}{
		"username":       username,
		"remote_address": "203.0.113.10",
		"stage":          "pre_auth",
	})
}

func (s *resolveSteps) connectsWithOfflineID(ctx context.Context, username string) error {
	return s.connectsWithID(ctx, username, offlineID(username))
}

func (s *resolveSteps) connectsWithID(ctx context.Context, username, id string) error {
	return s.tc.POST(resolvePath, map[string]interface{}{
		"username":       username,
		"remote_address": "203.0.113.10",
		"stage":          "post_auth",
		"assigned_id":    id,
	})
}

func (s *resolveSteps) postRawBody(ctx context.Context, body string) error {
	return s.tc.POST(resolvePath, body)
}

func (s *resolveSteps) statusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *resolveSteps) connectionShouldBe(ctx context.Context, outcome string) error {
	want := map[string]string{"allowed": "allow", "denied": "deny"}[outcome]
	return s.fieldShouldEqual(ctx, "action", want)
}

func (s *resolveSteps) sourceShouldBe(ctx context.Context, want string) error {
	return s.fieldShouldEqual(ctx, "source", want)
}

func (s *resolveSteps) sourceShouldBeOneOf(ctx context.Context, list string) error {
	got, err := s.tc.GetResponseField("source")
	if err != nil {
		return err
	}
	for _, want := range splitList(list) {
		if got == want {
			return nil
		}
	}
	return fmt.Errorf("source %v not in %q", got, list)
}

func (s *resolveSteps) responseShouldContain(ctx context.Context, field string) error {
	if !s.tc.ResponseContains(field) {
		return fmt.Errorf("response missing %q: %s", field, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *resolveSteps) fieldShouldEqual(ctx context.Context, field, want string) error {
	got, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *resolveSteps) arriveWithin(ctx context.Context, ms int) error {
	if elapsed := s.tc.GetLastElapsed(); elapsed > time.Duration(ms)*time.Millisecond {
		return fmt.Errorf("response took %s, limit %dms", elapsed, ms)
	}
	return nil
}

// offlineID mirrors the id a cracked proxy assigns so scenarios can present
// a non-premium identity.
func offlineID(username string) string {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

func splitList(list string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(list); i++ {
		if i == len(list) || list[i] == ',' {
			out = append(out, list[start:i])
			start = i + 1
		}
	}
	return out
}
