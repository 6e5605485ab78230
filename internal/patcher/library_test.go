package patcher

import "testing"

func TestLibraryImportValidatesPersonalities(t *testing.T) {
	lib, err := NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	fi := newTestFixtureType()
	fi.Personalities["broken"] = []string{"undeclared-channel"}

	if err := lib.Import(fi); err == nil {
		t.Fatal("expected validation error for undeclared channel reference")
	}
}

func TestLibraryReimportRejectsInUseChannelRemoval(t *testing.T) {
	lib, err := NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	fi := newTestFixtureType()
	if err := lib.Import(fi); err != nil {
		t.Fatalf("Import: %v", err)
	}

	revised := newTestFixtureType()
	revised.ID = fi.ID
	delete(revised.Channels, "color")
	revised.Personalities["standard"] = []string{"intensity"}

	err = lib.Reimport(revised, func(channel string) bool { return channel == "color" })
	if _, ok := err.(*ErrFixtureInUse); !ok {
		t.Fatalf("expected ErrFixtureInUse, got %v", err)
	}

	// Got gets accepted once nothing still references the dropped channel.
	err = lib.Reimport(revised, func(channel string) bool { return false })
	if err != nil {
		t.Fatalf("Reimport with no remaining references: %v", err)
	}
	got, err := lib.Get(fi.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := got.Channels["color"]; ok {
		t.Fatal("expected color channel to be gone after reimport")
	}
}

func TestLibraryManufacturersAndFamiliesWithoutCache(t *testing.T) {
	lib, err := NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	a := newTestFixtureType()
	b := newTestFixtureType()
	b.Manufacturer = "Other"
	b.Family = "Moving Head"
	_ = lib.Import(a)
	_ = lib.Import(b)

	manufacturers, err := lib.Manufacturers()
	if err != nil {
		t.Fatalf("Manufacturers: %v", err)
	}
	if len(manufacturers) != 2 {
		t.Fatalf("expected 2 distinct manufacturers, got %v", manufacturers)
	}

	families, err := lib.Families()
	if err != nil {
		t.Fatalf("Families: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("expected 2 distinct families, got %v", families)
	}
}
