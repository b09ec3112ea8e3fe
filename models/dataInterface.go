package models

type Identifier interface {
	GetId() int
}

// interface for dataloader result
type Data interface {
	Identifier
	GetDefault(int) Data
}

func (p Product) GetId() int {
	return p.ID
}

func (p Product) GetDefault(id int) Data {
	return Product{
		ID:                id,
		LowStockThreshold: DefaultLowStockThreshold,
	}
}

func (s Supplier) GetId() int {
	return s.ID
}

func (s Supplier) GetDefault(id int) Data {
	return Supplier{ID: id}
}

func (c Customer) GetId() int {
	return c.ID
}

func (c Customer) GetDefault(id int) Data {
	return Customer{ID: id}
}

func (u User) GetId() int {
	return u.ID
}

func (u User) GetDefault(id int) Data {
	return User{ID: id, Role: UserRoleOperator}
}
