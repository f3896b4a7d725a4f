package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	ActAs(name string) error
	PersonaID(name string) (string, error)
	LastStatus() int
	Field(path string) (any, error)
}

// RegisterSteps registers identity and generic response assertions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am "([^"]*)"$`, steps.iAm)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be the id of "([^"]*)"$`, steps.fieldShouldBeIDOf)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) iAm(_ context.Context, name string) error {
	return s.tc.ActAs(name)
}

func (s *commonSteps) notAuthenticated(context.Context) error {
	return s.tc.ActAs("")
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.LastStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d", want, got)
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, want string) error {
	return s.fieldShouldBe(ctx, "error", want)
}

func (s *commonSteps) fieldShouldBe(_ context.Context, path, want string) error {
	got, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s to be %q, got %q", path, want, fmt.Sprint(got))
	}
	return nil
}

func (s *commonSteps) fieldShouldBeIDOf(ctx context.Context, path, persona string) error {
	want, err := s.tc.PersonaID(persona)
	if err != nil {
		return err
	}
	return s.fieldShouldBe(ctx, path, want)
}
