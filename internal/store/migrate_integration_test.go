// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/accountd/accountd/internal/store"
	"github.com/accountd/accountd/internal/store/storetest"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx      context.Context
		db       *storetest.Database
		migrator *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		db, err = storetest.Start(ctx, false)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(db.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			_ = migrator.Close()
		}
		if db != nil {
			db.Close(ctx)
		}
	})

	tableExists := func(name string) bool {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).
			Scan(&exists)
		Expect(err).NotTo(HaveOccurred())
		return exists
	}

	It("starts at version 0", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(BeZero())
		Expect(st.Pending).To(Equal([]uint{1, 2}))
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())
		Expect(tableExists("users")).To(BeTrue())
		Expect(tableExists("profiles")).To(BeTrue())
	})

	It("treats a second Up as a no-op", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("cascades user deletion to the profile", func() {
		var userID int64
		Expect(db.Pool.QueryRow(ctx,
			`INSERT INTO users (email, password_hash, entity) VALUES ('c@x.com', 'h', 'Co') RETURNING id`).
			Scan(&userID)).To(Succeed())
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO profiles (user_id, firstname, lastname) VALUES ($1, 'A', 'B')`, userID)
		Expect(err).NotTo(HaveOccurred())

		_, err = db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
		Expect(err).NotTo(HaveOccurred())

		var n int
		Expect(db.Pool.QueryRow(ctx, `SELECT count(*) FROM profiles WHERE user_id = $1`, userID).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		Expect(tableExists("profiles")).To(BeFalse())
		Expect(tableExists("users")).To(BeTrue())

		Expect(migrator.Steps(1)).To(Succeed())
		Expect(tableExists("profiles")).To(BeTrue())
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())

		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(tableExists("users")).To(BeFalse())
	})

	It("forces a version without running SQL", func() {
		Expect(migrator.Force(1)).To(Succeed())

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(Equal(uint(1)))
		Expect(st.Dirty).To(BeFalse())
		Expect(tableExists("users")).To(BeFalse())
	})
})
