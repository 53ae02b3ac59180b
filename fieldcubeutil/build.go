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
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spatialmodel/fieldcube"
)

// readFields opens the input file and decomposes it into fields.
func readFields(inputFile string, opts *fieldcube.Options) (fieldcube.FieldList, *os.File, error) {
	if inputFile == "" {
		return nil, nil, fmt.Errorf(`you need to specify an input file configuration variable (for example: InputFile="fields.nc")`)
	}
	f, err := os.Open(inputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("fieldcube: opening input file: %v", err)
	}
	ds, err := fieldcube.OpenNetCDF(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	ds.MsgChan = opts.MsgChan
	fields, err := ds.Fields(opts)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return fields, f, nil
}

// Describe decomposes the input file into fields and prints one line of
// metadata per field to w.
func Describe(w io.Writer, inputFile string, opts *fieldcube.Options) error {
	fields, f, err := readFields(inputFile, opts)
	if err != nil {
		return err
	}
	defer f.Close()
	if opts.MsgChan != nil {
		opts.MsgChan <- fmt.Sprintf("Read %d fields from %s.\n", fields.Len(), inputFile)
	}
	_, err = fmt.Fprint(w, fields.String())
	return err
}

// BuildCube decomposes the input file into fields, assembles them into a
// hypercube, adds any derived variables, and writes the result to
// outputFile.
func BuildCube(inputFile, outputFile string, opts *fieldcube.Options, derive map[string]string) error {
	fields, f, err := readFields(inputFile, opts)
	if err != nil {
		return err
	}
	defer f.Close()
	if opts.MsgChan != nil {
		opts.MsgChan <- fmt.Sprintf("Read %d fields from %s.\n", fields.Len(), inputFile)
	}

	cube, err := fieldcube.Build(fields, opts)
	if err != nil {
		return err
	}

	// Derived variables are added in name order so repeated runs produce
	// the same file.
	names := make([]string, 0, len(derive))
	for name := range derive {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := cube.Derive(name, "", derive[name]); err != nil {
			return err
		}
	}

	w, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("fieldcube: creating output file: %v", err)
	}
	if err := cube.WriteNetCDF(w); err != nil {
		w.Close()
		return err
	}
	if opts.MsgChan != nil {
		opts.MsgChan <- fmt.Sprintf("Wrote %s.\n", outputFile)
	}
	return w.Close()
}
