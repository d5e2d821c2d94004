// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Type is a detector-type tag.
type Type uint8

const (
	Unknown            Type = iota
	Strip2D                 // double-sided strip detector
	Calorimeter             // calorimeter
	Strip3D                 // strip detector with depth resolution
	Scintillator            // scintillator (anti-coincidence)
	DriftChamber            // drift chamber
	Strip3DDirectional      // strip detector with depth and electron direction
	AngerCamera             // Anger camera
	Voxel3D                 // voxel detector
)

// NTypes is the number of valid detector types.
const NTypes = 8

var typeNames = [...]string{
	Unknown:            "unknown",
	Strip2D:            "strip2d",
	Calorimeter:        "calorimeter",
	Strip3D:            "strip3d",
	Scintillator:       "scintillator",
	DriftChamber:       "drift-chamber",
	Strip3DDirectional: "strip3d-directional",
	AngerCamera:        "anger-camera",
	Voxel3D:            "voxel3d",
}

// Types returns all the valid detector types.
func Types() []Type {
	return []Type{
		Strip2D, Calorimeter, Strip3D, Scintillator,
		DriftChamber, Strip3DDirectional, AngerCamera, Voxel3D,
	}
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid returns whether t is one of the 8 detector types.
func (t Type) Valid() bool { return t >= Strip2D && t <= Voxel3D }

// IsD1 returns whether t belongs to the class of detectors where a Compton
// sequence is expected to start (2D strip detectors and drift chambers).
func (t Type) IsD1() bool { return t == Strip2D || t == DriftChamber }

// ParseType parses the name of a detector type.
func ParseType(name string) (Type, error) {
	for i, v := range typeNames {
		if v == name && i != int(Unknown) {
			return Type(i), nil
		}
	}
	return Unknown, fmt.Errorf("geom: unknown detector type %q", name)
}

func (t Type) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	var name string
	err := node.Decode(&name)
	if err != nil {
		return err
	}
	v, err := ParseType(name)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

var (
	_ yaml.Marshaler   = Type(0)
	_ yaml.Unmarshaler = (*Type)(nil)
)
