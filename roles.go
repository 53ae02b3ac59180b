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

package fieldcube

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// A Role is an abstract dimension concept — ensemble member, vertical
// level, forecast time — that a role table maps to a concrete metadata
// key.
type Role string

const (
	RoleEnsemble  Role = "ens"
	RoleDate      Role = "date"
	RoleTime      Role = "time"
	RoleStep      Role = "step"
	RoleBaseTime  Role = "forecast_reference_time"
	RoleValidTime Role = "valid_time"
	RoleLevel     Role = "level"
	RoleLevelType Role = "level_type"
)

// A RoleTable maps dimension roles to the metadata keys that hold their
// values. An empty key for RoleBaseTime or RoleValidTime means the value
// is synthesized from the date and time roles (or the validityDate and
// validityTime keys) instead of being read directly.
type RoleTable map[Role]string

// Copy returns a copy of the table.
func (rt RoleTable) Copy() RoleTable {
	o := make(RoleTable, len(rt))
	for r, k := range rt {
		o[r] = k
	}
	return o
}

// ResolveRoles merges explicit role overrides into a profile's role
// defaults. The merge is key-by-key: overriding one role leaves all
// others at the profile's defaults.
func ResolveRoles(profile *Profile, overrides RoleTable) RoleTable {
	rt := profile.Roles.Copy()
	for r, k := range overrides {
		rt[r] = k
	}
	return rt
}

// A Profile is a named bundle of default builder options: the role table
// plus the variable key and mode defaults.
type Profile struct {
	Name         string
	VariableKey  string
	Roles        RoleTable
	TimeDimMode  TimeDimMode
	LevelDimMode LevelDimMode
	AttrsMode    AttrsMode
	Squeeze      bool
	Attrs        []string
}

// Copy returns a deep copy of the profile.
func (p *Profile) Copy() *Profile {
	o := *p
	o.Roles = p.Roles.Copy()
	o.Attrs = append([]string(nil), p.Attrs...)
	return &o
}

// defaultRoles returns the conventional role-to-key defaults shared by the
// built-in profiles.
func defaultRoles() RoleTable {
	return RoleTable{
		RoleEnsemble:  "number",
		RoleDate:      "dataDate",
		RoleTime:      "dataTime",
		RoleStep:      "step",
		RoleBaseTime:  "", // synthesized from date and time
		RoleValidTime: "", // synthesized from validityDate and validityTime
		RoleLevel:     "level",
		RoleLevelType: "typeOfLevel",
	}
}

// Profiles holds the built-in option profiles. "mars" records variable
// names under the param key as archive-style metadata does; "netcdf"
// records them under the variable key.
var Profiles = map[string]*Profile{
	"mars": {
		Name:         "mars",
		VariableKey:  "param",
		Roles:        defaultRoles(),
		TimeDimMode:  TimeDimForecast,
		LevelDimMode: LevelDimSingle,
		AttrsMode:    AttrsFixed,
		Squeeze:      true,
	},
	"netcdf": {
		Name:         "netcdf",
		VariableKey:  "variable",
		Roles:        defaultRoles(),
		TimeDimMode:  TimeDimForecast,
		LevelDimMode: LevelDimSingle,
		AttrsMode:    AttrsFixed,
		Squeeze:      true,
	},
}

// DefaultProfile returns a copy of the "mars" profile.
func DefaultProfile() *Profile { return Profiles["mars"].Copy() }

// GetProfile returns a copy of the named built-in profile.
func GetProfile(name string) (*Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return nil, fmt.Errorf("fieldcube: no profile named %q", name)
	}
	return p.Copy(), nil
}

// profileFile is the TOML form of a profile.
type profileFile struct {
	Name         string
	VariableKey  string
	TimeDimMode  string
	LevelDimMode string
	AttrsMode    string
	Squeeze      bool
	Attrs        []string
	Roles        map[string]string
}

// LoadProfile reads a profile from a TOML file. Settings not present in
// the file keep the defaults of the "mars" profile; the role table in the
// file is merged key-by-key into the default roles.
func LoadProfile(filename string) (*Profile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: opening profile file: %v", err)
	}
	defer f.Close()

	base := DefaultProfile()
	pf := profileFile{
		Name:         base.Name,
		VariableKey:  base.VariableKey,
		TimeDimMode:  string(base.TimeDimMode),
		LevelDimMode: string(base.LevelDimMode),
		AttrsMode:    string(base.AttrsMode),
		Squeeze:      base.Squeeze,
	}
	if _, err := toml.DecodeReader(f, &pf); err != nil {
		return nil, fmt.Errorf("fieldcube: reading profile file %s: %v", filename, err)
	}

	p := &Profile{
		Name:         pf.Name,
		VariableKey:  pf.VariableKey,
		Roles:        base.Roles,
		TimeDimMode:  TimeDimMode(pf.TimeDimMode),
		LevelDimMode: LevelDimMode(pf.LevelDimMode),
		AttrsMode:    AttrsMode(pf.AttrsMode),
		Squeeze:      pf.Squeeze,
		Attrs:        pf.Attrs,
	}
	for r, k := range pf.Roles {
		p.Roles[Role(r)] = k
	}
	if err := p.TimeDimMode.valid(); err != nil {
		return nil, err
	}
	if err := p.LevelDimMode.valid(); err != nil {
		return nil, err
	}
	if err := p.AttrsMode.valid(); err != nil {
		return nil, err
	}
	return p, nil
}
