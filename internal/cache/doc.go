/*
Package cache implements the engine's global container table: one entry
per loaded database, table, directory, or page, keyed by (name, basePath)
and sized independently per class.

Loading a container first checks the cache; a hit skips the file read
entirely. On a miss the loader reads the container, then calls Add with
save/free callbacks so the cache itself can write the container back and
release it on eviction, without internal/container depending on cache
policy.

	if v, ok := gct.Find(cache.ClassDirectory, name, basePath); ok {
		return v.(*container.Directory), nil
	}
	dir, err := loadDirectoryFromDisk(name, basePath)
	if err != nil {
		return nil, err
	}
	gct.Add(cache.ClassDirectory, name, basePath, dir,
		func() error { return dir.Close() },
		func() error { return dir.Save() },
	)

Pin/Unpin exempt an entry from least-recently-used eviction and lift that
exemption; Flush/FlushAll force an immediate save-and-remove, used on
delete and on transaction rollback.
*/
package cache
