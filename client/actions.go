package client

import (
	"context"

	"matchable.io/sdk/v1/action"
	"matchable.io/sdk/v1/response"
	"matchable.io/sdk/v1/services/sysinfoservice"
)

// Submit sends a named action built by the action package
func (c *Client) Submit(ctx context.Context, request action.Request) (*response.Response, error) {
	return c.SendAction(ctx, request.Type, request.Parameters)
}

// StartSession sends the configured game version and information about the device
func (c *Client) StartSession(ctx context.Context) (*response.Response, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	version := c.settings.Current().GameVersion
	return c.Submit(ctx, action.StartSession(version, sysinfoservice.Collect(c.sysinfo)))
}

func (c *Client) StartGame(ctx context.Context, parameters interface{}) (*response.Response, error) {
	return c.Submit(ctx, action.StartGame(parameters))
}

func (c *Client) GameResult(ctx context.Context, parameters interface{}) (*response.Response, error) {
	return c.Submit(ctx, action.GameResult(parameters))
}

// Retention is sent each time a bonus or booster is given to the player
func (c *Client) Retention(ctx context.Context, kind string) (*response.Response, error) {
	return c.Submit(ctx, action.Retention(kind))
}

// Conversion is sent each time a player converts and gains rewards
func (c *Client) Conversion(ctx context.Context, kind string) (*response.Response, error) {
	return c.Submit(ctx, action.Conversion(kind))
}
