/*
Copyright © 2019 the FieldCube authors.
This file is part of FieldCube.

FieldCube is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

FieldCube is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with FieldCube.  If not, see <http://www.gnu.org/licenses/>.
*/

package fieldcubeutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/fieldcube"
	"github.com/spf13/cast"
)

// BuildOptions unmarshals a viper configuration into builder options.
func BuildOptions(cfg *viper.Viper) (*fieldcube.Options, error) {
	profile, err := buildProfile(cfg)
	if err != nil {
		return nil, err
	}

	roles := make(fieldcube.RoleTable)
	for r, k := range GetStringMapString("DimRoles", cfg) {
		roles[fieldcube.Role(r)] = k
	}

	backend, err := backendByName(cfg.GetString("Backend"))
	if err != nil {
		return nil, err
	}

	o := &fieldcube.Options{
		Profile:           profile,
		VariableKey:       cfg.GetString("VariableKey"),
		DimRoles:          roles,
		ExtraDims:         expandStringSlice(cfg.GetStringSlice("ExtraDims")),
		DropDims:          expandStringSlice(cfg.GetStringSlice("DropDims")),
		EnsureDims:        expandStringSlice(cfg.GetStringSlice("EnsureDims")),
		FixedDims:         expandStringSlice(cfg.GetStringSlice("FixedDims")),
		DimsAsAttrs:       expandStringSlice(cfg.GetStringSlice("DimsAsAttrs")),
		RenameDims:        GetStringMapString("RenameDims", cfg),
		TimeDimMode:       fieldcube.TimeDimMode(cfg.GetString("TimeDimMode")),
		LevelDimMode:      fieldcube.LevelDimMode(cfg.GetString("LevelDimMode")),
		SortTimeDims:      cfg.GetBool("SortTimeDims"),
		Squeeze:           cfg.GetBool("Squeeze"),
		AttrsMode:         fieldcube.AttrsMode(cfg.GetString("AttrsMode")),
		VariableAttrs:     expandStringSlice(cfg.GetStringSlice("VariableAttrs")),
		GlobalAttrs:       expandStringSlice(cfg.GetStringSlice("GlobalAttrs")),
		Strict:            cfg.GetBool("Strict"),
		Backend:           backend,
		FlattenValues:     cfg.GetBool("FlattenValues"),
		AddValidTimeCoord: cfg.GetBool("AddValidTimeCoord"),
		AddGeoCoords:      cfg.GetBool("AddGeoCoords"),
	}
	if attrs := cfg.GetStringSlice("Attrs"); len(attrs) > 0 {
		o.Attrs = expandStringSlice(attrs)
	}
	if cfg.GetBool("Float32") {
		o.DType = fieldcube.Float32
	}
	return o, nil
}

// buildProfile resolves the profile settings: a TOML profile file if one is
// specified, otherwise the named built-in profile.
func buildProfile(cfg *viper.Viper) (*fieldcube.Profile, error) {
	if f := cfg.GetString("ProfileFile"); f != "" {
		return fieldcube.LoadProfile(os.ExpandEnv(f))
	}
	return fieldcube.GetProfile(cfg.GetString("Profile"))
}

// backendByName returns the array backend with the given name.
func backendByName(name string) (fieldcube.ArrayBackend, error) {
	for _, b := range []fieldcube.ArrayBackend{fieldcube.DenseBackend, fieldcube.ZeroBackend} {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("fieldcube: no array backend named %q", name)
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="cube.nc")`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("fieldcube: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for getStringMapString variable %s: %#v", varName, i))
	}
}
