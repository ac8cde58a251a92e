package store

import "database/sql"

type OrderRepo struct {
	db *sql.DB
}

func (r *OrderRepo) FindByID(id string) {
	r.db.Query("SELECT * FROM orders WHERE id = ?", id)
}

func (r *OrderRepo) Insert(id string) {
	r.db.Exec("INSERT INTO orders (id) VALUES (?)", id)
}
