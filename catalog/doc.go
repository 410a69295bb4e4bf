// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package catalog provides the entry and demand views the engines work with.

EntryView wraps store.Entries with the configured property, the
description formatter and the link templates:

	entries := catalog.NewEntryView(st, catalog.Config{
		Property:          "elasticity",
		DescriptionFields: []string{"pretty_formula", "spacegroup.symbol"},
		EntryURL:          "https://materialsproject.org/materials/{id}",
	}, nil)

DemandView wraps store.Demands and fixes the property, so callers deal
only in entry ids and users.
*/
package catalog
