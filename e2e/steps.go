package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"bloodlink/e2e/steps/common"
	"bloodlink/e2e/steps/donation"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return c, nil
	})

	common.RegisterSteps(ctx, tc)
	donation.RegisterSteps(ctx, donationContext{tc})
}

type donationContext struct {
	*TestContext
}

func (d donationContext) SendAs(ctx context.Context, persona, method, path string, body any) (donation.Response, error) {
	resp, err := d.Do(ctx, persona, method, path, body)
	return donation.Response{Status: resp.Status, Body: resp.Body}, err
}
