// Package storage writes the labeled dataset to disk.
//
// A Manager owns one <base>/<category> directory. Images are saved as
// zero-padded sequential names (0000.jpg, 0001.png, ...) through a temporary
// file and an atomic rename. When a category ends short of its target the
// rejected candidate URLs are written to failed_urls.txt.
//
//	m, err := storage.NewManager("dataset", "polar_bear")
//	if err != nil {
//	    return err
//	}
//	path, err := m.Save(0, "jpg", data)
package storage
