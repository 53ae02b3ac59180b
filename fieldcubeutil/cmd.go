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

	"github.com/lnashier/viper"
	"github.com/spatialmodel/fieldcube"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to FieldCube.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputFile",
			usage: `
              InputFile is the path to the NetCDF file holding the input fields.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{describeCmd.Flags(), buildCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path the assembled hypercube is written to.`,
			shorthand:  "o",
			defaultVal: "cube.nc",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "Profile",
			usage: `
              Profile names the built-in conversion profile supplying the
              defaults for the options below. The available profiles are
              'mars' and 'netcdf'.`,
			defaultVal: "mars",
			flagsets:   []*pflag.FlagSet{describeCmd.Flags(), buildCmd.Flags()},
		},
		{
			name: "ProfileFile",
			usage: `
              ProfileFile is the path to a TOML file holding a custom
              conversion profile. When it is set, Profile is ignored.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{describeCmd.Flags(), buildCmd.Flags()},
		},
		{
			name: "VariableKey",
			usage: `
              VariableKey is the metadata key holding the variable name that
              fields are grouped by. An empty value uses the profile default.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{describeCmd.Flags(), buildCmd.Flags()},
		},
		{
			name: "DimRoles",
			usage: `
              DimRoles overrides individual entries of the profile's role
              table, mapping role names (ens, date, time, step, level,
              level_type, forecast_reference_time, valid_time) to metadata
              keys.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{describeCmd.Flags(), buildCmd.Flags()},
		},
		{
			name: "TimeDimMode",
			usage: `
              TimeDimMode selects the shape of the temporal dimensions:
              'forecast' for reference time and step, 'valid_time' for a
              single valid-time dimension, or 'raw' for the date, time, and
              step keys as they appear. An empty value uses the profile
              default.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "LevelDimMode",
			usage: `
              LevelDimMode selects the shape of the vertical dimensions:
              'level' for a single dimension, 'level_per_type' for one
              dimension per level type, or 'level_and_type' for a composite
              dimension. An empty value uses the profile default.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "ExtraDims",
			usage: `
              ExtraDims names additional metadata keys to use as dimensions,
              after the automatically derived ones.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "DropDims",
			usage: `
              DropDims names dimensions to exclude from consideration
              entirely.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{describeCmd.Flags(), buildCmd.Flags()},
		},
		{
			name: "EnsureDims",
			usage: `
              EnsureDims names dimensions that are kept even when only one
              value of them is observed.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "FixedDims",
			usage: `
              FixedDims, when non-empty, is the complete dimension order,
              used verbatim instead of automatic derivation.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "DimsAsAttrs",
			usage: `
              DimsAsAttrs names dimensions demoted to per-variable
              attributes.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "RenameDims",
			usage: `
              RenameDims renames output dimensions, mapping the derived
              dimension name to the name to use instead.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "SortTimeDims",
			usage: `
              SortTimeDims orders time-like dimension values chronologically
              instead of in first-seen order.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "Squeeze",
			usage: `
              Squeeze drops dimensions with exactly one observed value,
              recording the value as a per-variable attribute instead.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "AttrsMode",
			usage: `
              AttrsMode selects how attribute keys are placed on the cube:
              'fixed' emits exactly the declared keys, 'unique' hoists keys
              whose value is identical everywhere to global attributes. An
              empty value uses the profile default.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "Attrs",
			usage: `
              Attrs names the metadata keys recorded as attributes; their
              placement depends on AttrsMode.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "VariableAttrs",
			usage: `
              VariableAttrs names metadata keys always recorded per
              variable.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "GlobalAttrs",
			usage: `
              GlobalAttrs names metadata keys always recorded globally.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "Strict",
			usage: `
              Strict requires the input fields to cover the Cartesian product
              of the dimension value sets exactly: no duplicate and no
              missing cells.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "Float32",
			usage: `
              Float32 stores the cube data in single precision instead of
              double precision.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "Backend",
			usage: `
              Backend selects the array allocator used for cube data:
              'dense' initializes missing cells to NaN and 'zero' to 0.`,
			defaultVal: "dense",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "FlattenValues",
			usage: `
              FlattenValues forces the grid axes to be flattened into a
              single 'values' dimension.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "AddValidTimeCoord",
			usage: `
              AddValidTimeCoord attaches a valid-time auxiliary coordinate
              computed from the reference time and step, unless valid time
              is already a dimension.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "AddGeoCoords",
			usage: `
              AddGeoCoords attaches latitude and longitude auxiliary
              coordinates along a flattened 'values' dimension.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "Derive",
			usage: `
              Derive maps new variable names to arithmetic expressions over
              the cube's variables; each derived variable is added to the
              cube after assembly.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("FIELDCUBE")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(describeCmd)
	Root.AddCommand(buildCmd)
}

// outChan returns a channel printing to standard output.
func outChan() chan string {
	outChan := make(chan string)
	go func() {
		for {
			msg := <-outChan
			fmt.Print(msg)
		}
	}()
	return outChan
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("fieldcube: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "fieldcube",
	Short: "Convert collections of gridded fields to labelled hypercubes.",
	Long: `FieldCube converts between collections of two-dimensional gridded fields
and labelled multidimensional hypercubes, inferring the cube dimensions
from the field metadata. Use the subcommands specified below to access
the functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'FIELDCUBE_var' where 'var' is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of FieldCube.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("FieldCube v%s\n", fieldcube.Version)
	},
	DisableAutoGenTag: true,
}

// describeCmd is a command that lists the fields of an input file.
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "List the fields of an input file.",
	Long: `describe decomposes the input file into two-dimensional fields and
prints one line of metadata per field, showing the values the hypercube
dimensions would be derived from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := BuildOptions(Cfg)
		if err != nil {
			return err
		}
		opts.MsgChan = outChan()
		return Describe(os.Stdout, os.ExpandEnv(Cfg.GetString("InputFile")), opts)
	},
	DisableAutoGenTag: true,
}

// buildCmd is a command that assembles an input file into a hypercube.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assemble fields into a hypercube.",
	Long: `build decomposes the input file into two-dimensional fields, assembles
them into a labelled hypercube along dimensions inferred from the field
metadata, and writes the result to a NetCDF file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := BuildOptions(Cfg)
		if err != nil {
			return err
		}
		opts.MsgChan = outChan()
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		return BuildCube(
			os.ExpandEnv(Cfg.GetString("InputFile")),
			outputFile,
			opts,
			GetStringMapString("Derive", Cfg))
	},
	DisableAutoGenTag: true,
}
