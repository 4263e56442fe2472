// Copyright 2025 omar16100
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

// hclConfig is the HCL schema:
//
//	default_profile = "work"
//
//	profile "work" {
//	  base_url = "https://example.atlassian.net"
//	  email    = "me@example.com"
//	}
type hclConfig struct {
	DefaultProfile *string      `hcl:"default_profile,optional"`
	Profiles       []hclProfile `hcl:"profile,block"`
}

type hclProfile struct {
	Name     string `hcl:"name,label"`
	BaseURL  string `hcl:"base_url,optional"`
	Email    string `hcl:"email,optional"`
	APIToken string `hcl:"api_token,optional"`
}

// loadHCL parses the config from HCL.
func loadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var raw hclConfig
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &raw); diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	cfg := &Config{}
	if raw.DefaultProfile != nil {
		cfg.DefaultProfile = *raw.DefaultProfile
	}
	for _, p := range raw.Profiles {
		cfg.SetProfile(p.Name, Profile{
			BaseURL:  p.BaseURL,
			Email:    p.Email,
			APIToken: p.APIToken,
		})
	}
	return cfg, nil
}
