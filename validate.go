package scriptx

import "context"

// Verify compares the ledger with the catalog. It reports applied versions
// that are missing from the catalog and applied scripts whose content changed.
// Runs never call Verify: drift does not block applying pending scripts.
func (m *Migrator) Verify(ctx context.Context) error {
	scripts, err := m.catalog.Load()
	if err != nil {
		return err
	}
	records, err := m.backend.Ledger.Records(ctx)
	if err != nil {
		return err
	}

	if removed := getRemovedScripts(records, scripts); len(removed) != 0 {
		return RemovedScriptsError{
			Versions: removed,
		}
	}

	return compareChecksums(records, scripts)
}

func getRemovedScripts(records []Record, scripts []Script) []string {
	versions := map[string]struct{}{}
	var removed []string

	for _, script := range scripts {
		versions[script.Version] = struct{}{}
	}

	for _, record := range records {
		if _, ok := versions[record.Version]; !ok {
			removed = append(removed, record.Version)
		}
	}

	return removed
}

func compareChecksums(records []Record, scripts []Script) error {
	byVersion := map[string]Record{}

	for _, record := range records {
		byVersion[record.Version] = record
	}

	for _, script := range scripts {
		if r, ok := byVersion[script.Version]; ok {
			if r.Checksum != script.Checksum {
				return ChecksumMismatchError{
					Version:  script.Version,
					Recorded: r.Checksum,
					Current:  script.Checksum,
				}
			}
		}
	}

	return nil
}

// validateDuplicates expects scripts sorted by version
func validateDuplicates(scripts []Script) error {
	for i := 1; i < len(scripts); i++ {
		if scripts[i].Version == scripts[i-1].Version {
			return DuplicateVersionError{Version: scripts[i].Version}
		}
	}
	return nil
}
