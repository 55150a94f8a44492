package domain

// domain package contains the persistence and mapping layer.
//
// Packages are layered as below. Upper ones depend on lower ones.
//
//   - `domain/invoice`, `domain/note`: example entities and DTOs, with constructors of their stores, services and mappers.
//   - `domain/mapper`: converts entities to DTOs and back, reconciling DTOs with stored entities.
//   - `domain/service`: facade of a store, running reads and writes in transaction scopes.
//   - `domain/store/db`: the store interface, and its implementations on PostgreSQL and DynamoDB.
//   - `domain/tx`: transaction scopes carried by context.Context.
//   - `domain/binding`: resolved entity and DTO types, and the identity field of them.
//   - `domain/model`: the capability of being identified, shared by entities and DTOs.
//
// Errors which callers may distinguish are in `domain/errors`.
